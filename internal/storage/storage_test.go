package storage

import (
	"context"
	"testing"

	"github.com/iliyamo/train-seat-reservation/internal/config"
)

func TestOpenMemory(t *testing.T) {
	st, err := Open(context.Background(), config.Config{StoreDriver: config.DriverMemory})
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if st.Inventory == nil || st.Tickets == nil || st.Users == nil {
		t.Fatalf("incomplete stores %+v", st)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), config.Config{StoreDriver: "sqlite"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
