package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/classify"
	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/embed"
	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/model"
	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/store"
)

// ErrOutOfOrder reports a mention dated before its link target's last mention.
// This indicates out-of-order replay and must never be silently repaired.
var ErrOutOfOrder = errors.New("mention date precedes target event's last mention date")

// Action says what the linker did with a mention.
type Action string

const (
	ActionLinked  Action = "linked"
	ActionCreated Action = "created"
)

// Decision is the outcome of linking one daily mention.
type Decision struct {
	Action Action
	Event  *model.CanonicalEvent
	// Score and Threshold describe the best candidate evaluated; both are
	// zero when no candidates existed.
	Score     float64
	Threshold float64
	// Arbitrated is set when the ambiguity-band classifier made the call.
	Arbitrated bool
}

// Linker attaches daily mentions to canonical events, creating events when no
// candidate scores high enough.
type Linker struct {
	embedder   embed.Embedder
	classifier classify.Classifier // nil: ambiguous cases always create new events
	cfg        model.LinkerConfig
	logger     *slog.Logger
}

// New creates a temporal linker. The classifier may be nil.
func New(embedder embed.Embedder, classifier classify.Classifier, cfg model.LinkerConfig, logger *slog.Logger) *Linker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Linker{
		embedder:   embedder,
		classifier: classifier,
		cfg:        cfg,
		logger:     logger,
	}
}

// Link decides where the mention belongs, stages the resulting event and
// mention writes on the unit, and returns the decision. The mention's
// CanonicalEventID is set before it is saved.
func (l *Linker) Link(ctx context.Context, unit store.Unit, m *model.DailyEventMention) (*Decision, error) {
	lookback := l.cfg.LookbackDays[m.Context]
	since := model.Day(m.MentionDate).AddDate(0, 0, -lookback)
	candidates, err := unit.Candidates(m.OriginEntity, since, m.MentionDate)
	if err != nil {
		return nil, fmt.Errorf("retrieve candidates: %w", err)
	}

	if len(candidates) == 0 {
		return l.createEvent(unit, m, Decision{})
	}

	best, score, err := l.bestCandidate(ctx, m, candidates)
	if err != nil {
		return nil, err
	}

	gap := best.DaysSinceLastMention(m.MentionDate)
	if gap < 0 {
		return nil, fmt.Errorf("event %s last mentioned %s, mention dated %s: %w",
			best.ID, best.LastMentionDate.Format(model.DateLayout),
			m.MentionDate.Format(model.DateLayout), ErrOutOfOrder)
	}

	threshold := adaptiveThreshold(l.cfg, m.Context, gap)
	d := Decision{Score: score, Threshold: threshold}

	if score >= threshold {
		return l.linkTo(unit, m, best, d)
	}

	if score >= threshold-l.cfg.AmbiguityBand && gap <= l.cfg.AmbiguityMaxGapDays {
		if l.arbitrate(ctx, m, best, score, gap) {
			d.Arbitrated = true
			return l.linkTo(unit, m, best, d)
		}
	}

	return l.createEvent(unit, m, d)
}

// bestCandidate scores every candidate with one batched embedding call and
// returns the highest-scoring one.
func (l *Linker) bestCandidate(ctx context.Context, m *model.DailyEventMention, candidates []*model.CanonicalEvent) (*model.CanonicalEvent, float64, error) {
	texts := make([]string, 0, len(candidates)+1)
	texts = append(texts, m.Headline)
	for _, ev := range candidates {
		texts = append(texts, ev.CanonicalName)
	}

	vecs, err := l.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, 0, fmt.Errorf("embed %d candidate names: %w", len(texts), err)
	}

	var best *model.CanonicalEvent
	bestScore := -1.0
	for i, ev := range candidates {
		semantic := embed.Similarity(vecs[0], vecs[i+1])
		b := scoreCandidate(l.cfg, m, ev, semantic)
		if b.Composite > bestScore {
			best = ev
			bestScore = b.Composite
		}
	}
	return best, bestScore, nil
}

// arbitrate asks the classifier for a same-event judgment in the ambiguity
// band. Any failure defaults to "different event".
func (l *Linker) arbitrate(ctx context.Context, m *model.DailyEventMention, ev *model.CanonicalEvent, score float64, gap int) bool {
	if l.classifier == nil {
		return false
	}

	judgment, err := l.classifier.JudgePair(ctx, classify.PairQuestion{
		NewHeadline:       m.Headline,
		NewSummary:        fmt.Sprintf("%d articles from %d publishers", m.ArticleCount, len(m.Sources)),
		NewContext:        string(m.Context),
		CandidateName:     ev.CanonicalName,
		CandidateAltNames: ev.AlternativeNames,
		CandidateHistory:  eventHistory(ev),
		Score:             score,
		GapDays:           gap,
	})
	if err != nil {
		l.logger.Warn("pair judgment failed, treating as different event",
			"event_id", ev.ID, "error", err)
		return false
	}
	return judgment.SameEvent && judgment.Confidence >= l.cfg.MinPairConfidence
}

// linkTo applies the mention to the matched event and stages both records.
// A replayed mention already folded into this event leaves the event's
// cumulative stats untouched; only the mention record is rewritten.
func (l *Linker) linkTo(unit store.Unit, m *model.DailyEventMention, ev *model.CanonicalEvent, d Decision) (*Decision, error) {
	prior, err := unit.FindMention(m.ID)
	if err != nil {
		return nil, fmt.Errorf("look up mention %s: %w", m.ID, err)
	}

	updated := ev
	if prior == nil || prior.CanonicalEventID != ev.ID {
		updated = l.applyMention(ev, m)
		if err := unit.UpsertEvent(updated); err != nil {
			return nil, fmt.Errorf("update event %s: %w", updated.ID, err)
		}
	}

	m.CanonicalEventID = updated.ID
	if err := unit.SaveMention(m); err != nil {
		return nil, fmt.Errorf("save mention %s: %w", m.ID, err)
	}

	d.Action = ActionLinked
	d.Event = updated
	return &d, nil
}

// createEvent spawns a new canonical event from the mention and stages both
// records.
func (l *Linker) createEvent(unit store.Unit, m *model.DailyEventMention, d Decision) (*Decision, error) {
	day := model.Day(m.MentionDate)
	ev := &model.CanonicalEvent{
		ID:               uuid.NewString(),
		CanonicalName:    m.Headline,
		OriginEntity:     m.OriginEntity,
		FirstMentionDate: day,
		LastMentionDate:  day,
		MentionDays:      1,
		TotalArticles:    m.ArticleCount,
		PeakArticles:     m.ArticleCount,
		PeakDate:         day,
		Publishers:       append([]string(nil), m.Sources...),
		MentionDates:     []time.Time{day},
		LastContext:      m.Context,
		Phase:            model.PhaseEmerging,
	}

	if err := unit.UpsertEvent(ev); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	m.CanonicalEventID = ev.ID
	if err := unit.SaveMention(m); err != nil {
		return nil, fmt.Errorf("save mention %s: %w", m.ID, err)
	}

	d.Action = ActionCreated
	d.Event = ev
	return &d, nil
}

// applyMention folds the mention into a clone of the event and recomputes its
// phase.
func (l *Linker) applyMention(ev *model.CanonicalEvent, m *model.DailyEventMention) *model.CanonicalEvent {
	up := ev.Clone()
	day := model.Day(m.MentionDate)

	newDay := true
	for _, d := range up.MentionDates {
		if model.Day(d).Equal(day) {
			newDay = false
			break
		}
	}
	if newDay {
		up.MentionDates = append(up.MentionDates, day)
		up.MentionDays++
	}

	up.LastMentionDate = day
	up.TotalArticles += m.ArticleCount
	if m.ArticleCount > up.PeakArticles {
		up.PeakArticles = m.ArticleCount
		up.PeakDate = day
	}
	up.Publishers = mergeStrings(up.Publishers, m.Sources)
	if m.Headline != up.CanonicalName {
		up.AlternativeNames = mergeStrings(up.AlternativeNames, []string{m.Headline})
	}
	up.LastContext = m.Context
	up.Phase = l.recomputePhase(up, day)
	return up
}

// recomputePhase applies the lifecycle rules after an update. The staleness
// sweep, not this recompute, is the only path into dormant.
func (l *Linker) recomputePhase(ev *model.CanonicalEvent, date time.Time) model.StoryPhase {
	recent := ev.MentionsInWindow(date, l.cfg.TrailingWindowDays)
	switch {
	case recent >= l.cfg.PeakMentions:
		return model.PhasePeak
	case recent >= l.cfg.DevelopingMentions:
		return model.PhaseDeveloping
	case ev.MentionDays <= l.cfg.EmergingMaxDays:
		return model.PhaseEmerging
	}

	gap := ev.DaysSinceLastMention(date)
	switch {
	case gap <= l.cfg.ActiveMaxGapDays:
		return model.PhaseActive
	case gap <= l.cfg.FadingMaxGapDays:
		return model.PhaseFading
	default:
		return model.PhaseDormant
	}
}

// eventHistory renders a one-line candidate summary for the pair prompt.
func eventHistory(ev *model.CanonicalEvent) string {
	return fmt.Sprintf("first mentioned %s, last mentioned %s, %d mention days, %d articles, phase %s",
		ev.FirstMentionDate.Format(model.DateLayout),
		ev.LastMentionDate.Format(model.DateLayout),
		ev.MentionDays, ev.TotalArticles, ev.Phase)
}

func mergeStrings(existing, add []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, s := range existing {
		seen[s] = true
	}
	out := existing
	for _, s := range add {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
