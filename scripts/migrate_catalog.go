package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"urbanharvest/internal/config"
	"urbanharvest/internal/database"
	"urbanharvest/internal/domain"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run upserts every item of a catalog seed file, so edited prices and
// descriptions reach an existing database. The API's own seeding only
// inserts missing items.
func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		seedPath = flag.String("catalog", "configs/catalog.yaml", "path to catalog.yaml")
		dbPath   = flag.String("db", "./data/urbanharvest.db", "path to sqlite db")
	)
	flag.Parse()

	items, err := config.LoadCatalogSeed(*seedPath)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no items in %s", *seedPath)
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	created := 0
	updated := 0
	for i := range items {
		it := &items[i]
		if it.ID == "" {
			continue
		}
		_, err = db.GetCatalogItem(ctx, it.Type, it.ID)
		if err == nil {
			if err = db.UpdateCatalogItem(ctx, it); err != nil {
				return fmt.Errorf("update %s: %w", it.ID, err)
			}
			updated++
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("get %s: %w", it.ID, err)
		}
		if err = db.CreateCatalogItem(ctx, it); err != nil {
			return fmt.Errorf("create %s: %w", it.ID, err)
		}
		created++
	}

	fmt.Printf("done: created=%d updated=%d\n", created, updated)
	return nil
}
