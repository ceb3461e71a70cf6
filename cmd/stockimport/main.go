package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"retailpos/internal/config"
	"retailpos/internal/excel"
	"retailpos/internal/repository"
	"retailpos/internal/service"
)

func main() {
	path := flag.String("file", "", "path to the .xlsx workbook (product_id | quantity | notes)")
	dryRun := flag.Bool("dry-run", false, "parse and print the rows without applying them")
	flag.Parse()

	if *path == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(context.Background(), *path, *dryRun); err != nil {
		log.Fatalf("stock import failed: %v", err)
	}
}

func run(ctx context.Context, path string, dryRun bool) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	rows, err := excel.ParseAdjustments(file)
	if err != nil {
		return err
	}
	if dryRun {
		for _, row := range rows {
			notes := ""
			if row.Notes != nil {
				notes = *row.Notes
			}
			fmt.Printf("%d\t%+d\t%s\n", row.ProductID, row.Quantity, notes)
		}
		log.Printf("dry run: %d rows parsed from %s", len(rows), path)
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := repository.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return err
	}
	defer store.Close()

	applied, err := service.New(store).ImportAdjustments(ctx, rows)
	if err != nil {
		return err
	}
	log.Printf("applied %d adjustments from %s", applied, path)
	return nil
}
