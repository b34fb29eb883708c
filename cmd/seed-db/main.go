// Command seed-db loads demo data into the database: catalog variants from a
// JSON file, a demo address book, and a welcome coupon.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ajaySingh2615/devices/internal/storage/postgres"
)

type variantJSON struct {
	ID        string          `json:"id"`
	ProductID string          `json:"productId"`
	SKU       string          `json:"sku"`
	Title     string          `json:"title"`
	PriceSale decimal.Decimal `json:"priceSale"`
	TaxRate   decimal.Decimal `json:"taxRate"`
	IsActive  bool            `json:"isActive"`
}

const (
	upsertVariantSQL = `INSERT INTO variants (id, product_id, sku, title, price_sale, tax_rate, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			product_id = EXCLUDED.product_id, sku = EXCLUDED.sku, title = EXCLUDED.title,
			price_sale = EXCLUDED.price_sale, tax_rate = EXCLUDED.tax_rate,
			is_active = EXCLUDED.is_active`

	upsertAddressSQL = `INSERT INTO addresses (id, user_id, name, phone, line1, line2, city, state, country, pincode)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`

	upsertCouponSQL = `INSERT INTO coupons
			(id, code, name, description, type, value, min_order_amount, max_discount_amount,
			start_at, end_at, usage_limit, per_user_limit, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name, description = EXCLUDED.description, type = EXCLUDED.type,
			value = EXCLUDED.value, min_order_amount = EXCLUDED.min_order_amount,
			max_discount_amount = EXCLUDED.max_discount_amount, start_at = EXCLUDED.start_at,
			end_at = EXCLUDED.end_at, usage_limit = EXCLUDED.usage_limit,
			per_user_limit = EXCLUDED.per_user_limit, is_active = EXCLUDED.is_active`
)

func main() {
	var (
		databaseURL  string
		variantsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&variantsFile, "variants-file", "db/seed/variants.json", "path to variants JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, variantsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, variantsFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedVariants(ctx, pool, variantsFile); err != nil {
		return errors.Wrap(err, "seed variants")
	}
	if err := seedAddresses(ctx, pool); err != nil {
		return errors.Wrap(err, "seed addresses")
	}
	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	return nil
}

func seedVariants(ctx context.Context, pool *pgxpool.Pool, variantsFile string) error {
	slog.Info("reading variants file", slog.String("path", variantsFile))

	data, err := os.ReadFile(variantsFile)
	if err != nil {
		return errors.Wrap(err, "read variants file")
	}

	var variants []variantJSON
	if err := json.Unmarshal(data, &variants); err != nil {
		return errors.Wrap(err, "parse variants JSON")
	}

	slog.Info("upserting variants", slog.Int("count", len(variants)))

	for _, v := range variants {
		_, err := pool.Exec(ctx, upsertVariantSQL,
			v.ID, v.ProductID, v.SKU, v.Title, v.PriceSale, v.TaxRate, v.IsActive,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert variant %s", v.ID)
		}

		slog.Info("upserted variant", slog.String("id", v.ID), slog.String("sku", v.SKU))
	}

	return nil
}

func seedAddresses(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo addresses")

	_, err := pool.Exec(ctx, upsertAddressSQL,
		"addr-demo-1", "user-demo-1", "Demo User", "9999999999",
		"42 MG Road", "Near City Mall", "Bengaluru", "KA", "IN", "560001",
	)
	if err != nil {
		return errors.Wrap(err, "upsert demo address")
	}
	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding welcome coupon")

	now := time.Now()
	minOrder := decimal.NewFromInt(1000)
	maxDiscount := decimal.NewFromInt(500)

	_, err := pool.Exec(ctx, upsertCouponSQL,
		"coupon-welcome10", "WELCOME10", "Welcome 10%",
		"10% off your first order above 1000",
		"PERCENTAGE", decimal.NewFromInt(10), minOrder, maxDiscount,
		now, now.AddDate(1, 0, 0), 1000, 1, true,
	)
	if err != nil {
		return errors.Wrap(err, "upsert coupon WELCOME10")
	}

	slog.Info("upserted coupon", slog.String("code", "WELCOME10"))
	return nil
}
