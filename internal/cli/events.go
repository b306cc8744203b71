package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/model"
	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/store"
)

var (
	queryEntity   string
	queryPhase    string
	queryFrom     string
	queryTo       string
	queryMentions bool
	queryJSON     bool
)

// eventsCmd represents the events command
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Query the canonical event registry",
	Long: `Events lists canonical events from the configured store, filtered by
origin entity, story phase and last-mention date range.

Example:
  softpower events --entity china
  softpower events --entity china --phase peak --from 2024-01-01
  softpower events --entity china --mentions --json`,
	RunE: runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().StringVar(&queryEntity, "entity", "", "origin entity filter")
	eventsCmd.Flags().StringVar(&queryPhase, "phase", "", "story phase filter (emerging, developing, peak, active, fading, dormant)")
	eventsCmd.Flags().StringVar(&queryFrom, "from", "", "earliest last-mention date (YYYY-MM-DD)")
	eventsCmd.Flags().StringVar(&queryTo, "to", "", "latest last-mention date (YYYY-MM-DD)")
	eventsCmd.Flags().BoolVar(&queryMentions, "mentions", false, "list daily mentions instead of events")
	eventsCmd.Flags().BoolVar(&queryJSON, "json", false, "output JSON instead of a table")
}

func runEvents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.Driver == "memory" {
		return fmt.Errorf("the memory store holds nothing between runs; configure the sqlite store to query past consolidations")
	}

	phase := model.StoryPhase(queryPhase)
	if queryPhase != "" && !model.ValidPhase(phase) {
		return fmt.Errorf("unknown story phase %q", queryPhase)
	}

	from, to, err := parseDateRange(queryFrom, queryTo)
	if err != nil {
		return err
	}

	st, err := store.NewStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	if queryMentions {
		mentions, err := st.ListMentions(ctx, store.MentionQuery{Entity: queryEntity, From: from, To: to})
		if err != nil {
			return err
		}
		return printMentions(mentions)
	}

	events, err := st.ListEvents(ctx, store.EventQuery{Entity: queryEntity, Phase: phase, From: from, To: to})
	if err != nil {
		return err
	}
	return printEvents(events)
}

func printEvents(events []*model.CanonicalEvent) error {
	if queryJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	if len(events) == 0 {
		fmt.Println("No events found.")
		return nil
	}
	for _, ev := range events {
		fmt.Printf("%-10s  %s .. %s  days=%-3d articles=%-4d  %s\n",
			ev.Phase,
			ev.FirstMentionDate.Format(model.DateLayout),
			ev.LastMentionDate.Format(model.DateLayout),
			ev.MentionDays, ev.TotalArticles,
			ev.CanonicalName)
	}
	fmt.Printf("\n%d event(s)\n", len(events))
	return nil
}

func printMentions(mentions []*model.DailyEventMention) error {
	if queryJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(mentions)
	}

	if len(mentions) == 0 {
		fmt.Println("No mentions found.")
		return nil
	}
	for _, m := range mentions {
		fmt.Printf("%s  %-13s articles=%-3d  %s\n",
			m.MentionDate.Format(model.DateLayout), m.Context, m.ArticleCount, m.Headline)
	}
	fmt.Printf("\n%d mention(s)\n", len(mentions))
	return nil
}
