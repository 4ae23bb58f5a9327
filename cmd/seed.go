package cmd

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/jvanheule/webhook-poller/internal/config"
	"github.com/jvanheule/webhook-poller/internal/db"
	"github.com/jvanheule/webhook-poller/internal/util"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the queue with demo pending events",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// 2) connect Postgres
		pgDB, err := db.NewPostgresConnection(cfg.Postgres.DSN, db.PostgresOpts{
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Postgres.ConnMaxIdleTime,
			PingTimeout:     cfg.Postgres.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("postgres connect: %w", err)
		}
		defer pgDB.Close()

		log.Println(">> Seeding demo webhook events...")

		if err := seedEvents(pgDB); err != nil {
			return err
		}

		log.Println(">> Seed completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

// seedEvents inserts a handful of pending events across demo buckets,
// including one bucket no router mapping will know about.
func seedEvents(dbx *sqlx.DB) error {
	type demoEvent struct {
		eventType string
		sourceKey string
	}
	events := []demoEvent{
		{"object.created", "bucket-a"},
		{"object.created", "bucket-b"},
		{"object.deleted", "bucket-a"},
		{"object.created", "bucket-unmapped"},
		{"object.archived", "bucket-b"},
	}

	const q = `
INSERT INTO webhook_events (event_type, payload, source_key)
VALUES ($1, $2, $3)
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, ev := range events {
		payload := fmt.Sprintf(`{"reference": %q, "bucket": %q}`, util.New(), ev.sourceKey)
		if _, err := tx.Exec(q, ev.eventType, payload, ev.sourceKey); err != nil {
			return fmt.Errorf("insert event %s/%s: %w", ev.sourceKey, ev.eventType, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit events: %w", err)
	}
	return nil
}
