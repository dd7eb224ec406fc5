// Command seed-db loads a JSON fixture of products, users, coupons, and API
// keys into the database. Intended for local development and demo
// environments; inserts are idempotent where the schema allows.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quickbite/delivery-core/internal/domain/auth"
	"github.com/quickbite/delivery-core/internal/domain/coupon"
	"github.com/quickbite/delivery-core/internal/domain/user"
	"github.com/quickbite/delivery-core/internal/storage/postgres"
)

type seedFile struct {
	Products []struct {
		ID       string          `json:"id"`
		Name     string          `json:"name"`
		Price    decimal.Decimal `json:"price"`
		Category string          `json:"category"`
	} `json:"products"`
	Users []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Role     string `json:"role"`
		Approval string `json:"approvalStatus"`
	} `json:"users"`
	Coupons []struct {
		Code  string          `json:"code"`
		Type  string          `json:"type"`
		Value decimal.Decimal `json:"value"`
	} `json:"coupons"`
	APIKeys []struct {
		Key    string `json:"key"`
		UserID string `json:"userId"`
	} `json:"apiKeys"`
}

func main() {
	var (
		databaseURL string
		seedPath    string
		pepper      string
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/seed.json", "path to seed JSON file")
	flag.StringVar(&pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or QB_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if pepper == "" {
		pepper = os.Getenv("QB_API_KEY_PEPPER")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, databaseURL, seedPath, pepper); err != nil {
		slog.Error("seed failed", "error", err)
		os.Exit(1)
	}
	slog.Info("seed complete")
}

func run(ctx context.Context, databaseURL, seedPath, pepper string) error {
	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed file")
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	for _, u := range seed.Users {
		approval := user.Approval(u.Approval)
		if approval == "" {
			approval = user.ApprovalPending
		}
		_, err := pool.Exec(ctx, `
			INSERT INTO users (id, name, role, approval_status)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING`,
			u.ID, u.Name, user.Role(u.Role), approval,
		)
		if err != nil {
			return errors.Wrapf(err, "user %s", u.ID)
		}
	}

	for _, p := range seed.Products {
		_, err := pool.Exec(ctx, `
			INSERT INTO products (id, name, price, category)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING`,
			p.ID, p.Name, p.Price, p.Category,
		)
		if err != nil {
			return errors.Wrapf(err, "product %s", p.ID)
		}
	}

	for _, c := range seed.Coupons {
		_, err := pool.Exec(ctx, `
			INSERT INTO coupons (code, discount_type, discount_value, active)
			VALUES ($1, $2, $3, TRUE)
			ON CONFLICT (code) DO NOTHING`,
			c.Code, coupon.Type(c.Type), c.Value,
		)
		if err != nil {
			return errors.Wrapf(err, "coupon %s", c.Code)
		}
	}

	keys := postgres.NewAPIKeyRepository(pool)
	for _, k := range seed.APIKeys {
		err := keys.Insert(ctx, &auth.Key{
			ID:      uuid.New().String(),
			KeyHash: auth.HashKey([]byte(pepper), k.Key),
			UserID:  k.UserID,
		})
		if err != nil {
			return errors.Wrapf(err, "api key for %s", k.UserID)
		}
	}

	slog.Info("seeded",
		"users", len(seed.Users),
		"products", len(seed.Products),
		"coupons", len(seed.Coupons),
		"api_keys", len(seed.APIKeys),
	)
	return nil
}
