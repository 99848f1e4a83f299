package main

import (
	"context"
	"fmt"
	"time"

	"tiger-life/config"
	"tiger-life/internal/broker"
	"tiger-life/internal/payment"
	"tiger-life/internal/service"
	"tiger-life/internal/store"
	"tiger-life/internal/util"
	"tiger-life/internal/worker"

	"github.com/spf13/cobra"
)

func openStore() (*store.Store, *config.Config, error) {
	cfg := config.Load()
	if err := util.InitLogger(cfg.Server.Env); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, cfg, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			version, err := db.MigrationVersion()
			if err != nil {
				return err
			}
			fmt.Printf("Database at version %d\n", version)
			return nil
		},
	}
}

func adminCmd(use, short string, grant bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [email]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			user, err := service.NewUserService(db).SetAdmin(ctx, args[0], grant)
			if err != nil {
				return fmt.Errorf("%s: %w", service.Message(err), err)
			}
			fmt.Printf("%s (%s) is_admin=%t\n", user.Email, user.ID, user.IsAdmin)
			return nil
		},
	}
}

func sweepOrdersCmd() *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "sweep-orders",
		Short: "Cancel orders that have been processing for too long",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			if maxAge == 0 {
				maxAge = cfg.Business.OrderTimeout
			}

			orders := service.NewOrderService(db, payment.NewStripeProvider(cfg.Stripe.SecretKey), cfg.Server.PublicOrigin)

			total, err := worker.NewOrderSweeper(orders, nil, time.Minute, maxAge).Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Cancelled %d stale orders\n", total)
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "cancel orders older than this (default ORDER_TIMEOUT)")
	return cmd
}

func relayOutboxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relay-outbox",
		Short: "Publish every queued event to Kafka once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
			defer producer.Close()

			relay := worker.NewOutboxRelay(db, broker.NewEventPublisher(producer), cfg.Business.OutboxInterval)
			total, err := relay.Relay(cmd.Context())
			fmt.Printf("Relayed %d queued events\n", total)
			return err
		},
	}
}
