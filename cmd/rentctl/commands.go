package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nyumbahub/rentals/internal/app"
	"github.com/nyumbahub/rentals/internal/config"
	"github.com/nyumbahub/rentals/internal/database"
	"github.com/nyumbahub/rentals/internal/scheduler"
	"github.com/nyumbahub/rentals/pkg/dates"
)

// errFailures makes the process exit non-zero when a job finished with item
// failures
var errFailures = errors.New("job finished with failures")

type env struct {
	cfg    *config.Config
	db     *sql.DB
	logger *logrus.Logger
	app    *app.App
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := app.NewLogger(cfg)

	db, err := database.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a, err := app.New(cfg, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	a.Queue.Start(ctx)
	return &env{cfg: cfg, db: db, logger: logger, app: a}, nil
}

func (e *env) close() {
	e.app.Queue.Stop()
	e.db.Close()
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// evaluationDate parses --date, defaulting to today in the configured zone
func evaluationDate(s string, jobs *scheduler.Jobs) (time.Time, error) {
	if s == "" {
		return jobs.Today(), nil
	}
	d, err := dates.Parse(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}

// billingMonth resolves --month/--year to a date in that month
func billingMonth(month, year int, today time.Time) (time.Time, error) {
	if month == 0 && year == 0 {
		return today, nil
	}
	if month == 0 {
		month = int(today.Month())
	}
	if year == 0 {
		year = today.Year()
	}
	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("invalid month %d", month)
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), nil
}

func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			db, err := database.NewPostgresConnection(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			if err := database.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Println("Schema is up to date.")
			return nil
		},
	}
}

func GenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate monthly rent obligations",
		RunE: func(cmd *cobra.Command, args []string) error {
			month, _ := cmd.Flags().GetInt("month")
			year, _ := cmd.Flags().GetInt("year")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			eval, err := billingMonth(month, year, e.app.Jobs.Today())
			if err != nil {
				return err
			}
			summary, err := e.app.Jobs.GenerateRent(cmd.Context(), eval, dryRun)
			if err != nil {
				return err
			}
			if err := printJSON(summary); err != nil {
				return err
			}
			if !summary.OK() {
				return errFailures
			}
			return nil
		},
	}

	cmd.Flags().Int("month", 0, "month to bill (1-12), defaults to the current month")
	cmd.Flags().Int("year", 0, "year to bill, defaults to the current year")
	cmd.Flags().Bool("dry-run", false, "report what would be created without writing")
	return cmd
}

func ReconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Expire and activate leases, accrue late fees and send reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, _ := cmd.Flags().GetString("date")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			eval, err := evaluationDate(date, e.app.Jobs)
			if err != nil {
				return err
			}
			summary, err := e.app.Jobs.Reconcile(cmd.Context(), eval, dryRun)
			if err != nil {
				return err
			}
			if err := printJSON(summary); err != nil {
				return err
			}
			if !summary.OK() {
				return errFailures
			}
			return nil
		},
	}

	cmd.Flags().String("date", "", "evaluation date (YYYY-MM-DD), defaults to today")
	cmd.Flags().Bool("dry-run", false, "report what would change without acting")
	return cmd
}

func ScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run both jobs on their cron schedules until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			sched, err := scheduler.New(e.app.Jobs, e.cfg.Schedule, e.logger)
			if err != nil {
				return err
			}
			sched.Start()
			<-ctx.Done()

			stopCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			sched.Stop(stopCtx)
			return nil
		},
	}
}
