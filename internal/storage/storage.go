// Package storage opens the repository backend selected by STORE_DRIVER.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/iliyamo/train-seat-reservation/internal/config"
	"github.com/iliyamo/train-seat-reservation/internal/database"
	"github.com/iliyamo/train-seat-reservation/internal/repository"
	"github.com/iliyamo/train-seat-reservation/internal/repository/memstore"
	"github.com/iliyamo/train-seat-reservation/internal/repository/mongostore"
)

// Stores bundles the three repositories of one backend.
type Stores struct {
	Inventory repository.Inventory
	Tickets   repository.TicketStore
	Users     repository.UserStore
	close     func()
}

// Close releases the backend connection.
func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// Open connects to the configured backend and prepares its schema.
func Open(ctx context.Context, cfg config.Config) (*Stores, error) {
	switch cfg.StoreDriver {
	case config.DriverMySQL:
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, fmt.Errorf("mysql: %w", err)
		}
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("mysql migrate: %w", err)
		}
		return MySQL(db), nil
	case config.DriverMongo:
		db, err := database.OpenMongo(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		if err := database.EnsureMongoIndexes(ctx, db); err != nil {
			_ = db.Client().Disconnect(context.Background())
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		return Mongo(db), nil
	case config.DriverMemory:
		return Memory(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func MySQL(db *sql.DB) *Stores {
	return &Stores{
		Inventory: repository.NewInventoryRepo(db),
		Tickets:   repository.NewTicketRepo(db),
		Users:     repository.NewUserRepo(db),
		close:     func() { _ = db.Close() },
	}
}

func Mongo(db *mongo.Database) *Stores {
	return &Stores{
		Inventory: mongostore.NewInventory(db),
		Tickets:   mongostore.NewTickets(db),
		Users:     mongostore.NewUsers(db),
		close:     func() { _ = db.Client().Disconnect(context.Background()) },
	}
}

// Memory returns fresh in-process stores; contents die with the process.
func Memory() *Stores {
	return &Stores{
		Inventory: memstore.NewInventory(),
		Tickets:   memstore.NewTickets(),
		Users:     memstore.NewUsers(),
	}
}
