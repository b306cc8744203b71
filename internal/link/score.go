package link

import (
	"strings"

	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/model"
)

// validSuccessors is the story-arc progression table: for each context last
// recorded on a candidate, the contexts a follow-up mention can plausibly
// carry. A mention whose context is not a valid successor (an announcement
// after an aftermath, say) is more likely a new story than a follow-up.
var validSuccessors = map[model.MentionContext]map[model.MentionContext]bool{
	model.ContextAnnouncement: {
		model.ContextAnnouncement: true,
		model.ContextPreparation:  true,
		model.ContextExecution:    true,
		model.ContextGeneral:      true,
	},
	model.ContextPreparation: {
		model.ContextPreparation: true,
		model.ContextExecution:   true,
		model.ContextGeneral:     true,
	},
	model.ContextExecution: {
		model.ContextExecution:    true,
		model.ContextContinuation: true,
		model.ContextAftermath:    true,
		model.ContextGeneral:      true,
	},
	model.ContextContinuation: {
		model.ContextContinuation: true,
		model.ContextExecution:    true,
		model.ContextAftermath:    true,
		model.ContextGeneral:      true,
	},
	model.ContextAftermath: {
		model.ContextAftermath: true,
		model.ContextGeneral:   true,
	},
	model.ContextGeneral: {
		model.ContextAnnouncement: true,
		model.ContextPreparation:  true,
		model.ContextExecution:    true,
		model.ContextContinuation: true,
		model.ContextAftermath:    true,
		model.ContextGeneral:      true,
	},
}

// scoreBreakdown carries the five component signals and the composite.
type scoreBreakdown struct {
	Semantic      float64
	Temporal      float64
	SourceOverlap float64
	Entity        float64
	Arc           float64
	Composite     float64
}

// scoreCandidate computes the weighted composite score of a candidate event
// for a new mention. semantic is the rescaled cosine similarity between the
// mention's headline and the candidate's canonical name, computed by the
// caller from one batched embedding call.
func scoreCandidate(cfg model.LinkerConfig, m *model.DailyEventMention, ev *model.CanonicalEvent, semantic float64) scoreBreakdown {
	gap := ev.DaysSinceLastMention(m.MentionDate)

	b := scoreBreakdown{
		Semantic:      semantic,
		Temporal:      temporalFit(gap, cfg.PhaseGapRanges[ev.Phase]),
		SourceOverlap: jaccard(m.Sources, ev.Publishers),
		Entity:        entityConsistency(cfg, m, ev),
		Arc:           arcCoherence(ev.LastContext, m.Context),
	}

	w := cfg.Weights
	b.Composite = w.Semantic*b.Semantic +
		w.Temporal*b.Temporal +
		w.SourceOverlap*b.SourceOverlap +
		w.Entity*b.Entity +
		w.Arc*b.Arc
	return b
}

// temporalFit scores how well the gap since the candidate's last mention
// matches the gap range expected for its phase. Full credit inside the range,
// partial credit for shorter gaps, linear decay toward zero for longer ones.
func temporalFit(gap int, r model.GapRange) float64 {
	if r.Max <= 0 {
		return 0
	}
	switch {
	case gap >= r.Min && gap <= r.Max:
		return 1.0
	case gap < r.Min:
		return 0.7
	default:
		over := float64(gap-r.Max) / float64(2*r.Max)
		if over >= 1 {
			return 0
		}
		return 1 - over
	}
}

// entityConsistency combines origin-entity match with keyword-entity overlap
// between the mention headline and the candidate's names.
func entityConsistency(cfg model.LinkerConfig, m *model.DailyEventMention, ev *model.CanonicalEvent) float64 {
	origin := 0.0
	if m.OriginEntity == ev.OriginEntity {
		origin = 1.0
	}

	candidateText := ev.CanonicalName
	if len(ev.AlternativeNames) > 0 {
		candidateText += " " + strings.Join(ev.AlternativeNames, " ")
	}
	keywords := jaccard(ExtractEntities(m.Headline), ExtractEntities(candidateText))

	return cfg.OriginWeight*origin + cfg.KeywordWeight*keywords
}

// arcCoherence scores whether the new context is a plausible successor to the
// candidate's last recorded context.
func arcCoherence(last, next model.MentionContext) float64 {
	successors, ok := validSuccessors[last]
	if !ok {
		// Unrecorded last context (legacy rows); treat as general.
		successors = validSuccessors[model.ContextGeneral]
	}
	if successors[next] {
		return 1.0
	}
	return 0.2
}

// adaptiveThreshold computes the link threshold for one (context, gap) pair:
// base, shifted per context and per gap rung, capped at the maximum.
func adaptiveThreshold(cfg model.LinkerConfig, ctx model.MentionContext, gap int) float64 {
	t := cfg.BaseThreshold + cfg.ContextAdjust[ctx]

	adjusted := false
	for _, step := range cfg.GapAdjust {
		if gap <= step.MaxDays {
			t += step.Adjust
			adjusted = true
			break
		}
	}
	if !adjusted {
		t += cfg.GapAdjustBeyond
	}

	if t > cfg.MaxThreshold {
		t = cfg.MaxThreshold
	}
	return t
}
