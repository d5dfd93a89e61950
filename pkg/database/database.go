package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/illegalcall/swift-letter/internal/config"
	"github.com/illegalcall/swift-letter/internal/pkg/supabase"
	"github.com/illegalcall/swift-letter/internal/repository"
)

// requiredTables must exist before the Postgres store is used. The schema
// itself is owned by the Supabase migrations.
var requiredTables = []string{"profiles", "contact_messages", "waitlist", "feedback", "app_stats"}

var ErrNoStore = errors.New("neither DATABASE_URL nor Supabase service credentials are set")

// Clients holds the optional direct connections. Either field may be nil.
type Clients struct {
	DB    *sqlx.DB
	Redis *redis.Client
}

// NewClients connects to Postgres when dbURL is set and to Redis when an
// address is configured.
func NewClients(ctx context.Context, dbURL string, redisCfg config.RedisConfig) (*Clients, error) {
	c := &Clients{}

	if dbURL != "" {
		db, err := sqlx.ConnectContext(ctx, "postgres", dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		c.DB = db
	}

	if redisCfg.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			c.Close()
			rdb.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		c.Redis = rdb
	}

	return c, nil
}

// VerifySchema checks that every table the store writes to is present.
func (c *Clients) VerifySchema(ctx context.Context) error {
	if c.DB == nil {
		return nil
	}
	var missing []string
	for _, table := range requiredTables {
		var name sql.NullString
		if err := c.DB.GetContext(ctx, &name, `SELECT to_regclass($1)::text`, "public."+table); err != nil {
			return fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if !name.Valid {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("database schema incomplete, missing tables: %v", missing)
	}
	slog.Info("Database schema verified", "tables", len(requiredTables))
	return nil
}

// Store picks the repository backend: direct Postgres when connected,
// otherwise the Supabase REST API.
func (c *Clients) Store(supa *supabase.Clients, refreshRPC string) (*repository.Store, error) {
	switch {
	case c.DB != nil:
		slog.Info("Using Postgres repositories")
		return repository.NewSQLStore(c.DB, refreshRPC), nil
	case supa != nil:
		slog.Info("Using Supabase REST repositories")
		return repository.NewRESTStore(supa.Service, supa.NewRESTClient, refreshRPC), nil
	}
	return nil, ErrNoStore
}

func (c *Clients) Close() error {
	var errs []error
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	return errors.Join(errs...)
}
