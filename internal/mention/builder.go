// Package mention converts finalized same-day clusters into persisted daily
// mention records.
package mention

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/model"
)

// contextPatterns maps each mention context to its keyword patterns. Matched
// in priority order against the concatenated article bodies; first context
// with a hit wins, default general.
var contextPatterns = map[model.MentionContext][]string{
	model.ContextAnnouncement: {
		"announce", "will host", "will hold", "plans to", "scheduled for",
		"upcoming", "to be held", "set to launch",
	},
	model.ContextPreparation: {
		"prepare", "preparation", "ahead of", "in the run-up",
		"preliminary", "organizers", "final arrangements",
	},
	model.ContextExecution: {
		"kicked off", "opened", "opens today", "underway", "inaugurated",
		"began", "commenced", "held today",
	},
	model.ContextContinuation: {
		"continues", "continued", "ongoing", "second day", "third day",
		"resumed", "still in progress",
	},
	model.ContextAftermath: {
		"concluded", "wrapped up", "ended", "aftermath", "outcomes of",
		"following the", "in the wake of", "closed with",
	},
}

// Builder converts one cluster of raw mentions into one DailyEventMention.
type Builder struct{}

// NewBuilder creates a mention builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build produces the daily mention record for a cluster. No side effects;
// persistence is the caller's responsibility.
func (b *Builder) Build(cluster []model.RawMention, date time.Time) (*model.DailyEventMention, error) {
	if len(cluster) == 0 {
		return nil, fmt.Errorf("cannot build mention from empty cluster")
	}

	docIDs := make([]string, len(cluster))
	for i, m := range cluster {
		docIDs[i] = m.DocID
	}

	sources := uniquePublishers(cluster)
	dm := &model.DailyEventMention{
		ID:              model.MentionID(date, cluster[0].OriginEntity, docIDs),
		MentionDate:     model.Day(date),
		OriginEntity:    cluster[0].OriginEntity,
		ArticleCount:    len(cluster),
		Headline:        selectHeadline(cluster),
		Sources:         sources,
		SourceDiversity: float64(len(sources)) / float64(len(cluster)),
		DocIDs:          docIDs,
		Context:         ClassifyContext(cluster),
	}
	return dm, nil
}

// selectHeadline picks the most frequent raw event name, ties broken by
// first occurrence.
func selectHeadline(cluster []model.RawMention) string {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	for i, m := range cluster {
		counts[m.EventName]++
		if _, ok := firstSeen[m.EventName]; !ok {
			firstSeen[m.EventName] = i
		}
	}

	best := cluster[0].EventName
	for name, n := range counts {
		if n > counts[best] || (n == counts[best] && firstSeen[name] < firstSeen[best]) {
			best = name
		}
	}
	return best
}

// ClassifyContext classifies what stage of a story the cluster's coverage
// represents, by keyword matching over the concatenated text bodies.
func ClassifyContext(cluster []model.RawMention) model.MentionContext {
	var b strings.Builder
	for _, m := range cluster {
		b.WriteString(strings.ToLower(m.Text))
		b.WriteByte(' ')
	}
	text := b.String()

	for _, ctx := range model.Contexts() {
		for _, pattern := range contextPatterns[ctx] {
			if strings.Contains(text, pattern) {
				return ctx
			}
		}
	}
	return model.ContextGeneral
}

func uniquePublishers(cluster []model.RawMention) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range cluster {
		if m.Publisher == "" || seen[m.Publisher] {
			continue
		}
		seen[m.Publisher] = true
		out = append(out, m.Publisher)
	}
	sort.Strings(out)
	return out
}
