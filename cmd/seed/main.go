// seed loads a timetable file into the configured store.  Services that
// already exist are left alone, so the same file can be applied after
// every schedule change.
//
//	seed --file schedules.yaml
//	seed --file schedules.yaml --dry-run
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/iliyamo/train-seat-reservation/internal/config"
	"github.com/iliyamo/train-seat-reservation/internal/schedule"
	"github.com/iliyamo/train-seat-reservation/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		file       string
		dryRun     bool
		noAdmin    bool
		bcryptCost int
	)
	flags := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	flags.StringVarP(&file, "file", "f", "", "timetable YAML to load (required)")
	flags.BoolVar(&dryRun, "dry-run", false, "validate the file and print what would be created")
	flags.BoolVar(&noAdmin, "no-admin", false, "ignore the admin section of the file")
	flags.IntVar(&bcryptCost, "bcrypt-cost", 0, "bcrypt cost for the admin password (default BCRYPT_COST)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if file == "" {
		flags.Usage()
		return fmt.Errorf("--file is required")
	}

	f, err := schedule.Load(file)
	if err != nil {
		return err
	}
	if noAdmin {
		f.Admin = nil
	}
	if dryRun {
		services, err := f.Expand()
		if err != nil {
			return err
		}
		for _, s := range services {
			seats := 0
			for _, c := range s.Cars {
				seats += len(c.Seats)
			}
			fmt.Printf("%s %s %q: %d stops, %d cars, %d seats\n", s.ServiceCode, s.ServiceDate, s.ServiceName, len(s.Stops), len(s.Cars), seats)
		}
		return nil
	}

	cfg := config.Load()
	if cfg.StoreDriver == config.DriverMemory {
		return fmt.Errorf("STORE_DRIVER=memory keeps nothing after exit; set SEED_FILE on the server instead")
	}
	if bcryptCost == 0 {
		bcryptCost = cfg.BcryptCost
	}
	ctx := context.Background()
	st, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := schedule.Apply(ctx, st.Inventory, st.Users, f, bcryptCost)
	if err != nil {
		return err
	}
	fmt.Printf("created %d services, skipped %d existing", res.Created, res.Skipped)
	if res.AdminCreated {
		fmt.Print(", created admin account")
	}
	fmt.Println()
	return nil
}
