package link

import (
	"math"
	"testing"

	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/model"
)

func linkerConfig() model.LinkerConfig {
	return model.DefaultConfig().Linker
}

func TestExtractEntities(t *testing.T) {
	got := ExtractEntities("China-Egypt Trade Forum opens in Cairo under the Belt and Road initiative")
	want := []string{"belt and road", "cairo", "china", "egypt"}
	if len(got) != len(want) {
		t.Fatalf("ExtractEntities = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ExtractEntities = %v, want %v", got, want)
		}
	}
}

func TestExtractEntitiesNoMatch(t *testing.T) {
	if got := ExtractEntities("quarterly earnings report"); len(got) != 0 {
		t.Errorf("ExtractEntities = %v, want none", got)
	}
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		a, b []string
		want float64
	}{
		{[]string{"x", "y"}, []string{"x", "y"}, 1},
		{[]string{"x", "y"}, []string{"y", "z"}, 1.0 / 3.0},
		{[]string{"x"}, []string{"y"}, 0},
		{nil, nil, 0},
		{[]string{"x"}, nil, 0},
		{[]string{"x", "x"}, []string{"x"}, 1},
	}
	for _, tt := range tests {
		if got := jaccard(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("jaccard(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestTemporalFit(t *testing.T) {
	r := model.GapRange{Min: 3, Max: 10}

	if got := temporalFit(5, r); got != 1.0 {
		t.Errorf("in-range gap = %v, want 1.0", got)
	}
	if got := temporalFit(3, r); got != 1.0 {
		t.Errorf("lower bound = %v, want 1.0", got)
	}
	if got := temporalFit(10, r); got != 1.0 {
		t.Errorf("upper bound = %v, want 1.0", got)
	}
	if got := temporalFit(1, r); got != 0.7 {
		t.Errorf("short gap = %v, want 0.7", got)
	}
	// Decay: 5 days past a 10-day max is halfway to zero credit.
	if got := temporalFit(20, r); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("long gap = %v, want 0.5", got)
	}
	if got := temporalFit(100, r); got != 0 {
		t.Errorf("very long gap = %v, want 0", got)
	}
}

func TestArcCoherence(t *testing.T) {
	valid := [][2]model.MentionContext{
		{model.ContextAnnouncement, model.ContextPreparation},
		{model.ContextPreparation, model.ContextExecution},
		{model.ContextExecution, model.ContextContinuation},
		{model.ContextExecution, model.ContextAftermath},
		{model.ContextContinuation, model.ContextAftermath},
		{model.ContextGeneral, model.ContextAnnouncement},
	}
	for _, pair := range valid {
		if got := arcCoherence(pair[0], pair[1]); got != 1.0 {
			t.Errorf("arcCoherence(%s -> %s) = %v, want 1.0", pair[0], pair[1], got)
		}
	}

	invalid := [][2]model.MentionContext{
		{model.ContextAftermath, model.ContextAnnouncement},
		{model.ContextAftermath, model.ContextExecution},
		{model.ContextExecution, model.ContextAnnouncement},
	}
	for _, pair := range invalid {
		if got := arcCoherence(pair[0], pair[1]); got >= 1.0 {
			t.Errorf("arcCoherence(%s -> %s) = %v, want below 1.0", pair[0], pair[1], got)
		}
	}
}

func TestAdaptiveThreshold(t *testing.T) {
	cfg := linkerConfig()

	tests := []struct {
		ctx  model.MentionContext
		gap  int
		want float64
	}{
		{model.ContextGeneral, 2, 0.75},
		{model.ContextGeneral, 7, 0.80},
		{model.ContextGeneral, 14, 0.85},
		{model.ContextGeneral, 30, 0.90},
		{model.ContextGeneral, 31, 0.95},
		{model.ContextContinuation, 2, 0.70},
		{model.ContextAftermath, 2, 0.80},
		{model.ContextAnnouncement, 2, 0.85},
		// Cap: announcement far out would be 0.75+0.10+0.20.
		{model.ContextAnnouncement, 45, 0.95},
	}
	for _, tt := range tests {
		got := adaptiveThreshold(cfg, tt.ctx, tt.gap)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("adaptiveThreshold(%s, %d) = %v, want %v", tt.ctx, tt.gap, got, tt.want)
		}
	}
}

func TestScoreCandidateWeightsSum(t *testing.T) {
	cfg := linkerConfig()
	m := &model.DailyEventMention{
		MentionDate:  model.Day(dayN(10)),
		OriginEntity: "china",
		Headline:     "China-Egypt Trade Forum continues",
		Sources:      []string{"Xinhua", "Ahram"},
		Context:      model.ContextContinuation,
	}
	ev := &model.CanonicalEvent{
		ID:              "ev1",
		CanonicalName:   "China-Egypt Trade Forum",
		OriginEntity:    "china",
		LastMentionDate: model.Day(dayN(8)),
		Publishers:      []string{"Xinhua", "Ahram"},
		LastContext:     model.ContextExecution,
		Phase:           model.PhaseActive,
	}

	b := scoreCandidate(cfg, m, ev, 1.0)

	// Every signal at full credit: composite is exactly 1.
	if math.Abs(b.Composite-1.0) > 1e-9 {
		t.Errorf("Composite = %v, want 1.0 (breakdown %+v)", b.Composite, b)
	}
}

func TestScoreCandidatePenalizesMismatch(t *testing.T) {
	cfg := linkerConfig()
	m := &model.DailyEventMention{
		MentionDate:  model.Day(dayN(40)),
		OriginEntity: "china",
		Headline:     "Riyadh Tech Week announced",
		Sources:      []string{"Gulf News"},
		Context:      model.ContextAnnouncement,
	}
	ev := &model.CanonicalEvent{
		ID:              "ev1",
		CanonicalName:   "China-Egypt Trade Forum",
		OriginEntity:    "china",
		LastMentionDate: model.Day(dayN(1)),
		Publishers:      []string{"Xinhua"},
		LastContext:     model.ContextAftermath,
		Phase:           model.PhaseFading,
	}

	b := scoreCandidate(cfg, m, ev, 0.5)
	if b.Composite >= 0.5 {
		t.Errorf("Composite = %v, want well below 0.5 (breakdown %+v)", b.Composite, b)
	}
}
