package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/metrics"
	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/model"
	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/pipeline"
	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/store"
)

var (
	sourcePath string
	fromDate   string
	toDate     string
	entities   []string
	runTimeout time.Duration
)

// consolidateCmd represents the consolidate command
var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Consolidate raw event mentions into canonical events",
	Long: `Consolidate runs both stages over a mention file:
- cluster each day's raw mentions per origin entity into daily mentions
- link daily mentions to canonical events across days

Dates for one origin entity are replayed in chronological order; distinct
entities run in parallel. Failed units are reported individually so a
replay can target exactly what did not commit.

Example:
  softpower consolidate --source mentions.jsonl
  softpower consolidate --source mentions.jsonl --from 2024-01-01 --to 2024-03-31
  softpower consolidate --source mentions.jsonl --entities china,egypt`,
	RunE: runConsolidate,
}

func init() {
	rootCmd.AddCommand(consolidateCmd)

	consolidateCmd.Flags().StringVar(&sourcePath, "source", "", "mention file (JSON lines, one raw mention per line)")
	consolidateCmd.Flags().StringVar(&fromDate, "from", "", "first date to process (YYYY-MM-DD, default: earliest)")
	consolidateCmd.Flags().StringVar(&toDate, "to", "", "last date to process (YYYY-MM-DD, default: latest)")
	consolidateCmd.Flags().StringSliceVar(&entities, "entities", nil, "origin entities to process (default: all in source)")
	consolidateCmd.Flags().DurationVar(&runTimeout, "timeout", 30*time.Minute, "overall run timeout")

	_ = consolidateCmd.MarkFlagRequired("source")
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	from, to, err := parseDateRange(fromDate, toDate)
	if err != nil {
		return err
	}

	source, err := pipeline.OpenJSONL(sourcePath)
	if err != nil {
		return err
	}

	st, err := store.NewStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	p, err := pipeline.New(cfg, source, st, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	report, err := p.Run(ctx, from, to, entities)
	if err != nil {
		return err
	}

	printRunSummary(report, p.Metrics())

	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d unit(s) failed", len(failed))
	}
	return nil
}

// parseDateRange parses optional from/to flags; zero times mean unbounded.
func parseDateRange(fromStr, toStr string) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if fromStr != "" {
		from, err = time.Parse(model.DateLayout, fromStr)
		if err != nil {
			return from, to, fmt.Errorf("parse --from: %w", err)
		}
	}
	if toStr != "" {
		to, err = time.Parse(model.DateLayout, toStr)
		if err != nil {
			return from, to, fmt.Errorf("parse --to: %w", err)
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return from, to, fmt.Errorf("--to %s is before --from %s", toStr, fromStr)
	}
	return from, to, nil
}

func printRunSummary(report *pipeline.RunReport, reg *metrics.Registry) {
	fmt.Println()
	fmt.Println("Consolidation run complete")
	fmt.Printf("  units processed:  %d\n", reg.Total(metrics.UnitsProcessed))
	fmt.Printf("  units failed:     %d\n", reg.Total(metrics.UnitsFailed))
	fmt.Printf("  daily mentions:   %d\n", reg.Total(metrics.MentionsBuilt))
	fmt.Printf("  linked:           %d\n", reg.Total(metrics.EventsLinked))
	fmt.Printf("  new events:       %d\n", reg.Total(metrics.EventsCreated))
	fmt.Printf("  swept dormant:    %d\n", reg.Total(metrics.EventsSwept))
	fmt.Printf("  arbitrations:     %d\n", reg.Total(metrics.Arbitrations))

	if failed := report.Failed(); len(failed) > 0 {
		fmt.Println()
		fmt.Println("Failed units (replay these):")
		for _, u := range failed {
			fmt.Fprintf(os.Stderr, "  %s %s: %v\n",
				u.Date.Format(model.DateLayout), u.Entity, u.Err)
		}
	}
}
