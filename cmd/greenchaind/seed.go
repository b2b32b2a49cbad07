package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/greenchain/greenchain/buyer"
	"github.com/greenchain/greenchain/service"
	"github.com/greenchain/greenchain/storage"
)

// demoBuyers covers the categories the sample inventory ships with, with
// quantity windows spread out so matching produces varied shortlists.
func demoBuyers() []*buyer.Buyer {
	qty := func(v int64) decimal.Decimal { return decimal.NewFromInt(v) }
	maxQty := func(v int64) *decimal.Decimal {
		d := decimal.NewFromInt(v)
		return &d
	}

	return []*buyer.Buyer{
		{
			Name:            "FreshCart Outlet",
			Contact:         "purchasing@freshcart.example",
			Categories:      []string{"dairy", "produce"},
			MaxDeliveryDays: 2,
			MinQuantity:     qty(20),
			MaxQuantity:     maxQty(500),
			Active:          true,
		},
		{
			Name:            "Budget Bites Wholesale",
			Contact:         "orders@budgetbites.example",
			Categories:      []string{"bakery", "dairy"},
			MaxDeliveryDays: 3,
			MinQuantity:     qty(50),
			MaxQuantity:     maxQty(2000),
			Active:          true,
		},
		{
			Name:            "Community Food Bank",
			Contact:         "intake@cfb.example",
			Categories:      nil, // takes anything
			MaxDeliveryDays: 1,
			MinQuantity:     qty(10),
			Active:          true,
		},
		{
			Name:            "HoReCa Supply Co",
			Contact:         "buy@horecasupply.example",
			Categories:      []string{"beverages", "frozen"},
			MaxDeliveryDays: 5,
			MinQuantity:     qty(100),
			MaxQuantity:     maxQty(5000),
			Active:          true,
		},
	}
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	_, pool, err := setup(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	sugar := logger.Sugar()

	if err := storage.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	store := storage.NewPostgresStore(pool)
	svc := service.New(store, &service.Config{InstanceID: "seed"})

	for _, b := range demoBuyers() {
		id, err := svc.CreateBuyer(ctx, b)
		if err != nil {
			return fmt.Errorf("failed to seed buyer %q: %w", b.Name, err)
		}
		sugar.Infow("buyer seeded", "id", id, "name", b.Name)
	}

	if len(args) == 1 {
		path := args[0]
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open inventory file: %w", err)
		}
		defer f.Close()

		result, err := svc.ImportCSV(ctx, filepath.Base(path), f)
		if err != nil {
			return fmt.Errorf("failed to import inventory: %w", err)
		}
		sugar.Infow("inventory seeded",
			"import_id", result.ImportID,
			"accepted", result.Report.RowsAccepted,
			"rejected", result.Report.RowsRejected,
		)
	}

	sugar.Info("seed complete")
	return nil
}
