// Command import-legacy loads historical paid bookings for one workshop from
// a payment processor CSV export.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/polyphonica/booking/internal/di"
	"github.com/polyphonica/booking/internal/service"
	"github.com/polyphonica/booking/migrations"
	"github.com/polyphonica/booking/pkg/config"
	"github.com/polyphonica/booking/pkg/database"
	"github.com/polyphonica/booking/pkg/logger"
)

func main() {
	workshop := flag.String("workshop", "", "workshop id or slug")
	file := flag.String("file", "", "CSV export to import")
	dryRun := flag.Bool("dry-run", false, "preview the rows without writing anything")
	flag.Parse()

	if *workshop == "" || *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(&logger.Config{Level: "info", ServiceName: "import-legacy", Development: true}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLog := logger.Get()

	ctx := context.Background()

	db, err := database.NewPostgres(ctx, database.DefaultPostgresConfig(cfg.Database.DSN()))
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to connect to database: %v", err))
	}
	defer db.Close()
	if cfg.Database.MigrateOnStart {
		if err := database.Migrate(ctx, db.DSN(), migrations.FS); err != nil {
			appLog.Fatal(fmt.Sprintf("Failed to apply migrations: %v", err))
		}
	}

	f, err := os.Open(*file)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to open %s: %v", *file, err))
	}
	defer f.Close()

	container := di.NewContainer(&di.ContainerConfig{Config: cfg, DB: db})

	report, err := container.ImportService.ImportLegacy(ctx, service.ImportRequest{
		WorkshopRef: *workshop,
		File:        f,
		DryRun:      *dryRun,
	})
	var invalid *service.ImportValidationError
	if errors.As(err, &invalid) {
		fmt.Fprintln(os.Stderr, "The file has problems, nothing was imported:")
		for _, p := range invalid.Problems {
			fmt.Fprintln(os.Stderr, "  "+p)
		}
		os.Exit(1)
	}
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Import failed: %v", err))
	}

	printReport(report)
}

func printReport(r *service.ImportReport) {
	fmt.Printf("Workshop: %s (%s)\n\n", r.WorkshopTitle, r.WorkshopID)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tEMAIL\tNAME\tGROSS\tFEE\tDATE\tSTATUS")
	for _, b := range r.Rows {
		status := "new"
		if b.Skip {
			status = "already registered"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			b.Row, b.Email, b.Name, b.Gross, b.Fee, b.Date.Format("2006-01-02"), status)
	}
	_ = tw.Flush()

	fmt.Printf("\n%d rows, %d new, %d skipped\n", r.Total, r.New, r.Skipped)
	if r.DryRun {
		fmt.Println("Dry run, nothing was written.")
		return
	}
	if o := r.Outcome; o != nil {
		fmt.Printf("Created %d users, %d registrations, %d fee records (%d legacy bookings left)\n",
			o.UsersCreated, o.RegistrationsCreated, o.FeeRecordsCreated, o.LegacyBookingsLeft)
	}
}
