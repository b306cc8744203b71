package link

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/classify"
	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/model"
	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/store"
)

// dayN returns day n of a fixed test month.
func dayN(n int) time.Time {
	return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n-1)
}

// fakeEmbedder serves vectors from a fixed map; unknown texts share a default.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Name() string { return "fake" }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if vec, ok := f.vectors[text]; ok {
			out[i] = vec
		} else {
			out[i] = []float32{1, 0}
		}
	}
	return out, nil
}

// spyClassifier records pair judgments and returns a canned answer.
type spyClassifier struct {
	judgment classify.PairJudgment
	err      error
	pairs    int
}

func (s *spyClassifier) Name() string { return "spy" }

func (s *spyClassifier) SplitCluster(_ context.Context, _ []string) classify.SplitResult {
	return classify.SplitResult{Outcome: classify.SplitUnchanged}
}

func (s *spyClassifier) JudgePair(_ context.Context, _ classify.PairQuestion) (classify.PairJudgment, error) {
	s.pairs++
	return s.judgment, s.err
}

func newTestLinker(emb *fakeEmbedder, cls classify.Classifier) *Linker {
	return New(emb, cls, model.DefaultConfig().Linker, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func seedEvent(t *testing.T, st store.EventStore, ev *model.CanonicalEvent) {
	t.Helper()
	unit, err := st.Begin(context.Background(), ev.OriginEntity)
	if err != nil {
		t.Fatal(err)
	}
	if err := unit.UpsertEvent(ev); err != nil {
		t.Fatal(err)
	}
	if err := unit.Commit(); err != nil {
		t.Fatal(err)
	}
}

func linkOnce(t *testing.T, l *Linker, st store.EventStore, m *model.DailyEventMention) *Decision {
	t.Helper()
	unit, err := st.Begin(context.Background(), m.OriginEntity)
	if err != nil {
		t.Fatal(err)
	}
	d, err := l.Link(context.Background(), unit, m)
	if err != nil {
		t.Fatal(err)
	}
	if err := unit.Commit(); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestLinkContinuationTwoDayGap(t *testing.T) {
	st := store.NewMemoryStore()
	seedEvent(t, st, &model.CanonicalEvent{
		ID:               "ev1",
		CanonicalName:    "China-Egypt Trade Forum",
		OriginEntity:     "china",
		FirstMentionDate: dayN(8),
		LastMentionDate:  dayN(8),
		MentionDays:      1,
		TotalArticles:    3,
		PeakArticles:     3,
		PeakDate:         dayN(8),
		Publishers:       []string{"Xinhua", "Ahram"},
		MentionDates:     []time.Time{dayN(8)},
		LastContext:      model.ContextExecution,
		Phase:            model.PhaseActive,
	})

	emb := &fakeEmbedder{vectors: map[string][]float32{
		"China-Egypt Trade Forum continues": {1, 0},
		"China-Egypt Trade Forum":           {1, 0},
	}}
	l := newTestLinker(emb, nil)

	m := &model.DailyEventMention{
		ID:           "m1",
		MentionDate:  dayN(10),
		OriginEntity: "china",
		ArticleCount: 2,
		Headline:     "China-Egypt Trade Forum continues",
		Sources:      []string{"Xinhua", "Ahram"},
		Context:      model.ContextContinuation,
	}

	d := linkOnce(t, l, st, m)
	if d.Action != ActionLinked {
		t.Fatalf("Action = %s, want linked (score %.3f threshold %.3f)", d.Action, d.Score, d.Threshold)
	}
	if d.Event.ID != "ev1" {
		t.Errorf("linked to %s, want ev1", d.Event.ID)
	}
	if m.CanonicalEventID != "ev1" {
		t.Errorf("mention CanonicalEventID = %q, want ev1", m.CanonicalEventID)
	}

	got, err := st.GetEvent(context.Background(), "ev1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.LastMentionDate.Equal(dayN(10)) {
		t.Errorf("LastMentionDate = %v, want day 10", got.LastMentionDate)
	}
	if got.MentionDays != 2 {
		t.Errorf("MentionDays = %d, want 2", got.MentionDays)
	}
	if got.TotalArticles != 5 {
		t.Errorf("TotalArticles = %d, want 5", got.TotalArticles)
	}
	if got.LastContext != model.ContextContinuation {
		t.Errorf("LastContext = %s", got.LastContext)
	}
	if got.PeakArticles != 3 {
		t.Errorf("PeakArticles = %d, want unchanged 3", got.PeakArticles)
	}
	for _, name := range got.AlternativeNames {
		if name == m.Headline {
			return
		}
	}
	t.Errorf("headline not recorded in AlternativeNames %v", got.AlternativeNames)
}

func TestDormantEventNeverCandidate(t *testing.T) {
	st := store.NewMemoryStore()
	seedEvent(t, st, &model.CanonicalEvent{
		ID:               "ev-dormant",
		CanonicalName:    "China-Egypt Trade Forum",
		OriginEntity:     "china",
		FirstMentionDate: dayN(1),
		LastMentionDate:  dayN(1),
		MentionDays:      1,
		MentionDates:     []time.Time{dayN(1)},
		Publishers:       []string{"Xinhua"},
		LastContext:      model.ContextAftermath,
		Phase:            model.PhaseDormant,
	})

	l := newTestLinker(&fakeEmbedder{}, nil)

	// Announcement lookback is 60 days: the window alone would admit the
	// dormant event.
	m := &model.DailyEventMention{
		ID:           "m1",
		MentionDate:  dayN(46),
		OriginEntity: "china",
		ArticleCount: 1,
		Headline:     "China-Egypt Trade Forum announced",
		Sources:      []string{"Xinhua"},
		Context:      model.ContextAnnouncement,
	}

	d := linkOnce(t, l, st, m)
	if d.Action != ActionCreated {
		t.Fatalf("Action = %s, want created", d.Action)
	}
	if d.Event.ID == "ev-dormant" {
		t.Error("linked to a dormant event")
	}
	if d.Event.Phase != model.PhaseEmerging {
		t.Errorf("new event phase = %s, want emerging", d.Event.Phase)
	}
}

func TestPhaseTransitionsToPeak(t *testing.T) {
	st := store.NewMemoryStore()
	seedEvent(t, st, &model.CanonicalEvent{
		ID:               "ev1",
		CanonicalName:    "China-Egypt Trade Forum",
		OriginEntity:     "china",
		FirstMentionDate: dayN(3),
		LastMentionDate:  dayN(6),
		MentionDays:      4,
		TotalArticles:    8,
		PeakArticles:     3,
		PeakDate:         dayN(4),
		Publishers:       []string{"Xinhua"},
		MentionDates:     []time.Time{dayN(3), dayN(4), dayN(5), dayN(6)},
		LastContext:      model.ContextExecution,
		Phase:            model.PhaseDeveloping,
	})

	emb := &fakeEmbedder{vectors: map[string][]float32{
		"China-Egypt Trade Forum": {1, 0},
	}}
	l := newTestLinker(emb, nil)

	m := &model.DailyEventMention{
		ID:           "m1",
		MentionDate:  dayN(7),
		OriginEntity: "china",
		ArticleCount: 2,
		Headline:     "China-Egypt Trade Forum",
		Sources:      []string{"Xinhua"},
		Context:      model.ContextContinuation,
	}

	d := linkOnce(t, l, st, m)
	if d.Action != ActionLinked {
		t.Fatalf("Action = %s, want linked (score %.3f threshold %.3f)", d.Action, d.Score, d.Threshold)
	}
	// Five mention days inside the trailing seven.
	if d.Event.Phase != model.PhasePeak {
		t.Errorf("Phase = %s, want peak", d.Event.Phase)
	}
}

func TestScoreAtThresholdLinks(t *testing.T) {
	st := store.NewMemoryStore()
	seedEvent(t, st, &model.CanonicalEvent{
		ID:               "ev1",
		CanonicalName:    "China-Egypt Trade Forum",
		OriginEntity:     "china",
		FirstMentionDate: dayN(8),
		LastMentionDate:  dayN(8),
		MentionDays:      1,
		MentionDates:     []time.Time{dayN(8)},
		Publishers:       []string{"Xinhua"},
		LastContext:      model.ContextExecution,
		Phase:            model.PhaseActive,
	})

	// Weights and threshold are exact binary fractions, so score and
	// threshold compare exactly: orthogonal vectors give semantic 0.5,
	// temporal fit is 1.0, composite 0.5*0.5 + 0.5*1.0 = 0.75 = threshold.
	cfg := model.DefaultConfig().Linker
	cfg.Weights = model.ScoreWeights{Semantic: 0.5, Temporal: 0.5}
	cfg.BaseThreshold = 0.75
	cfg.ContextAdjust[model.ContextContinuation] = 0

	emb := &fakeEmbedder{vectors: map[string][]float32{
		"China-Egypt Trade Forum talks continued": {0, 1},
		"China-Egypt Trade Forum":                 {1, 0},
	}}
	l := New(emb, nil, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	m := &model.DailyEventMention{
		ID:           "m1",
		MentionDate:  dayN(10),
		OriginEntity: "china",
		ArticleCount: 1,
		Headline:     "China-Egypt Trade Forum talks continued",
		Sources:      []string{"Xinhua"},
		Context:      model.ContextContinuation,
	}

	d := linkOnce(t, l, st, m)
	if d.Score != d.Threshold {
		t.Fatalf("score %.6f != threshold %.6f, boundary construction broken", d.Score, d.Threshold)
	}
	if d.Action != ActionLinked {
		t.Fatalf("Action = %s, want linked at exact threshold", d.Action)
	}
	if d.Arbitrated {
		t.Error("at-threshold link must not consult the classifier")
	}
}

func TestAmbiguityBandLongGapSkipsClassifier(t *testing.T) {
	st := store.NewMemoryStore()
	seedEvent(t, st, &model.CanonicalEvent{
		ID:               "ev1",
		CanonicalName:    "China-Egypt Trade Forum",
		OriginEntity:     "china",
		FirstMentionDate: dayN(1),
		LastMentionDate:  dayN(1),
		MentionDays:      3,
		MentionDates:     []time.Time{dayN(1)},
		Publishers:       []string{"Xinhua"},
		LastContext:      model.ContextGeneral,
		Phase:            model.PhaseFading,
	})

	// Semantic 1/6: composite lands just at the bottom of the ambiguity band
	// (threshold 0.85 at a 10-day gap, band floor 0.75) while the gap rules
	// out arbitration.
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"China-Egypt Trade Forum report": {-0.6666666, 0.745356},
		"China-Egypt Trade Forum":        {1, 0},
	}}
	cls := &spyClassifier{judgment: classify.PairJudgment{SameEvent: true, Confidence: 0.99}}
	l := newTestLinker(emb, cls)

	m := &model.DailyEventMention{
		ID:           "m1",
		MentionDate:  dayN(11),
		OriginEntity: "china",
		ArticleCount: 1,
		Headline:     "China-Egypt Trade Forum report",
		Sources:      []string{"Xinhua"},
		Context:      model.ContextGeneral,
	}

	d := linkOnce(t, l, st, m)
	if d.Action != ActionCreated {
		t.Fatalf("Action = %s, want created (score %.6f threshold %.6f)", d.Action, d.Score, d.Threshold)
	}
	if cls.pairs != 0 {
		t.Error("classifier consulted despite gap beyond the arbitration limit")
	}
}

func TestAmbiguityBandArbitration(t *testing.T) {
	newMention := func() *model.DailyEventMention {
		return &model.DailyEventMention{
			ID:           "m1",
			MentionDate:  dayN(10),
			OriginEntity: "china",
			ArticleCount: 1,
			Headline:     "China-Egypt Trade Forum talks continued",
			Sources:      []string{"Reuters"},
			Context:      model.ContextContinuation,
		}
	}
	seed := func(st store.EventStore) {
		seedEvent(t, st, &model.CanonicalEvent{
			ID:               "ev1",
			CanonicalName:    "China-Egypt Trade Forum",
			OriginEntity:     "china",
			FirstMentionDate: dayN(8),
			LastMentionDate:  dayN(8),
			MentionDays:      1,
			MentionDates:     []time.Time{dayN(8)},
			Publishers:       []string{"Xinhua"},
			LastContext:      model.ContextExecution,
			Phase:            model.PhaseActive,
		})
	}
	// Disjoint sources zero the source signal and semantic similarity 1/3
	// trims the rest: composite ~0.65, inside the band below the 0.70
	// continuation threshold at gap 2.
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"China-Egypt Trade Forum talks continued": {-0.3333333, 0.9428090},
		"China-Egypt Trade Forum":                 {1, 0},
	}}

	t.Run("confident same-event links", func(t *testing.T) {
		st := store.NewMemoryStore()
		seed(st)
		cls := &spyClassifier{judgment: classify.PairJudgment{SameEvent: true, Confidence: 0.9}}
		d := linkOnce(t, newTestLinker(emb, cls), st, newMention())
		if cls.pairs != 1 {
			t.Fatalf("classifier consulted %d times, want 1", cls.pairs)
		}
		if d.Action != ActionLinked || !d.Arbitrated {
			t.Errorf("Action = %s arbitrated=%v, want arbitrated link (score %.3f threshold %.3f)",
				d.Action, d.Arbitrated, d.Score, d.Threshold)
		}
	})

	t.Run("low confidence creates", func(t *testing.T) {
		st := store.NewMemoryStore()
		seed(st)
		cls := &spyClassifier{judgment: classify.PairJudgment{SameEvent: true, Confidence: 0.5}}
		d := linkOnce(t, newTestLinker(emb, cls), st, newMention())
		if d.Action != ActionCreated {
			t.Errorf("Action = %s, want created on low confidence", d.Action)
		}
	})

	t.Run("classifier failure creates", func(t *testing.T) {
		st := store.NewMemoryStore()
		seed(st)
		cls := &spyClassifier{err: errors.New("timeout")}
		d := linkOnce(t, newTestLinker(emb, cls), st, newMention())
		if d.Action != ActionCreated {
			t.Errorf("Action = %s, want created on classifier failure", d.Action)
		}
	})

	t.Run("nil classifier creates", func(t *testing.T) {
		st := store.NewMemoryStore()
		seed(st)
		d := linkOnce(t, newTestLinker(emb, nil), st, newMention())
		if d.Action != ActionCreated {
			t.Errorf("Action = %s, want created without a classifier", d.Action)
		}
	})
}

// outOfOrderUnit returns a candidate dated after the mention, simulating a
// corrupted replay order.
type outOfOrderUnit struct {
	store.Unit
	event *model.CanonicalEvent
}

func (u *outOfOrderUnit) Candidates(_ string, _, _ time.Time) ([]*model.CanonicalEvent, error) {
	return []*model.CanonicalEvent{u.event}, nil
}

func TestOutOfOrderMentionIsFatal(t *testing.T) {
	l := newTestLinker(&fakeEmbedder{}, nil)

	unit := &outOfOrderUnit{event: &model.CanonicalEvent{
		ID:              "ev1",
		CanonicalName:   "China-Egypt Trade Forum",
		OriginEntity:    "china",
		LastMentionDate: dayN(12),
		MentionDates:    []time.Time{dayN(12)},
		LastContext:     model.ContextExecution,
		Phase:           model.PhaseActive,
	}}

	m := &model.DailyEventMention{
		ID:           "m1",
		MentionDate:  dayN(10),
		OriginEntity: "china",
		Headline:     "China-Egypt Trade Forum",
		Context:      model.ContextGeneral,
	}

	_, err := l.Link(context.Background(), unit, m)
	if !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("err = %v, want ErrOutOfOrder", err)
	}
}

func TestReplayedMentionDoesNotInflateStats(t *testing.T) {
	st := store.NewMemoryStore()
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"China-Egypt Trade Forum": {1, 0},
	}}
	l := newTestLinker(emb, nil)

	newMention := func() *model.DailyEventMention {
		return &model.DailyEventMention{
			ID:           model.MentionID(dayN(10), "china", []string{"d1", "d2"}),
			MentionDate:  dayN(10),
			OriginEntity: "china",
			ArticleCount: 2,
			Headline:     "China-Egypt Trade Forum",
			Sources:      []string{"Xinhua"},
			Context:      model.ContextExecution,
		}
	}

	first := linkOnce(t, l, st, newMention())
	if first.Action != ActionCreated {
		t.Fatalf("first Action = %s, want created", first.Action)
	}

	// The replayed mention links back to the event it created; the event's
	// counters must not change.
	second := linkOnce(t, l, st, newMention())
	if second.Action != ActionLinked {
		t.Fatalf("replay Action = %s, want linked (score %.3f threshold %.3f)",
			second.Action, second.Score, second.Threshold)
	}
	if second.Event.ID != first.Event.ID {
		t.Fatalf("replay linked to %s, want %s", second.Event.ID, first.Event.ID)
	}

	got, err := st.GetEvent(context.Background(), first.Event.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalArticles != 2 {
		t.Errorf("TotalArticles = %d, want 2 after replay", got.TotalArticles)
	}
	if got.MentionDays != 1 {
		t.Errorf("MentionDays = %d, want 1 after replay", got.MentionDays)
	}
	if got.PeakArticles != 2 {
		t.Errorf("PeakArticles = %d, want 2 after replay", got.PeakArticles)
	}

	mentions, err := st.ListMentions(context.Background(), store.MentionQuery{Entity: "china"})
	if err != nil {
		t.Fatal(err)
	}
	if len(mentions) != 1 {
		t.Errorf("got %d mentions after replay, want 1", len(mentions))
	}
}

func TestLastMentionDateMonotonic(t *testing.T) {
	st := store.NewMemoryStore()
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"China-Egypt Trade Forum": {1, 0},
	}}
	l := newTestLinker(emb, nil)

	var last time.Time
	for _, n := range []int{5, 6, 8, 11} {
		m := &model.DailyEventMention{
			ID:           model.MentionID(dayN(n), "china", []string{"d1"}),
			MentionDate:  dayN(n),
			OriginEntity: "china",
			ArticleCount: 1,
			Headline:     "China-Egypt Trade Forum",
			Sources:      []string{"Xinhua"},
			Context:      model.ContextExecution,
		}
		d := linkOnce(t, l, st, m)
		if d.Event.LastMentionDate.Before(last) {
			t.Fatalf("LastMentionDate went backwards at day %d", n)
		}
		last = d.Event.LastMentionDate
	}
}
