// Command sync-fees copies processor fee breakdowns onto paid bookings.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/polyphonica/booking/internal/di"
	"github.com/polyphonica/booking/internal/gateway"
	"github.com/polyphonica/booking/internal/service"
	"github.com/polyphonica/booking/pkg/config"
	"github.com/polyphonica/booking/pkg/database"
	"github.com/polyphonica/booking/pkg/logger"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "fetch and print fees without writing")
	force := flag.Bool("force", false, "refetch payments that already have a fee record")
	all := flag.Bool("all", false, "process every paid booking regardless of age")
	days := flag.Int("days", 30, "lookback in days on the paid date")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(&logger.Config{Level: "info", ServiceName: "sync-fees", Development: true}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLog := logger.Get()

	if cfg.Stripe.SecretKey == "" {
		appLog.Fatal("STRIPE_SECRET_KEY is required to fetch fees")
	}

	ctx := context.Background()

	db, err := database.NewPostgres(ctx, database.DefaultPostgresConfig(cfg.Database.DSN()))
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to connect to database: %v", err))
	}
	defer db.Close()

	stripeGateway, err := gateway.NewStripeGateway(&gateway.StripeGatewayConfig{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Currency:      cfg.Stripe.Currency,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to create Stripe gateway: %v", err))
	}

	container := di.NewContainer(&di.ContainerConfig{Config: cfg, DB: db, PaymentGateway: stripeGateway})

	result, err := container.FeeSyncService.Sync(ctx, service.FeeSyncOptions{
		Days:   *days,
		All:    *all,
		Force:  *force,
		DryRun: *dryRun,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Fee sync failed: %v", err))
	}

	if len(result.Previews) > 0 {
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KIND\tPAYMENT\tGROSS\tFEE\tNET")
		for _, p := range result.Previews {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Kind, p.PaymentIntentID, p.Gross, p.Fee, p.Net)
		}
		_ = tw.Flush()
		fmt.Println()
	}
	fmt.Printf("%d workshop and %d concert payments: %s\n", result.Workshop, result.Concert, result)
	if result.Errors > 0 {
		os.Exit(1)
	}
}
