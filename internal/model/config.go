package model

import (
	"fmt"
	"math"
	"time"
)

// Config is the full engine configuration. All tunables the consolidation
// engine uses live here, keyed explicitly by mention context or story phase
// and validated at startup. Scoring weights and thresholds are empirically
// chosen; treat them as tunable, not optimal.
type Config struct {
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Cluster     ClusterConfig     `yaml:"cluster"`
	Linker      LinkerConfig      `yaml:"linker"`
	Store       StoreConfig       `yaml:"store"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider name: "openai" or "cohere"
	Provider string `yaml:"provider"`

	// Model name (provider-specific)
	Model string `yaml:"model"`

	// APIKey for the provider (usually supplied via environment)
	APIKey string `yaml:"api_key,omitempty"`

	// BaseURL for custom endpoints
	BaseURL string `yaml:"base_url,omitempty"`

	// Timeout per batch call
	Timeout time.Duration `yaml:"timeout"`

	// CacheTTL for embedded texts; zero disables caching
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// CacheDir enables a disk cache layer when non-empty
	CacheDir string `yaml:"cache_dir,omitempty"`

	// RatePerSecond / Burst throttle batch calls to the provider
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// ClassifierConfig configures the text classifier used for ambiguous cases.
type ClassifierConfig struct {
	// Provider name: "openai", "" (disabled; every ambiguous case falls
	// back to the documented fail-safe defaults)
	Provider string `yaml:"provider"`

	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`

	// Timeout per call; an expired timeout counts as classifier failure,
	// never as a batch failure
	Timeout time.Duration `yaml:"timeout"`

	MaxTokens int `yaml:"max_tokens"`
}

// ClusterConfig configures same-day clustering.
type ClusterConfig struct {
	// SameDaySimilarity is the minimum cosine similarity for two same-day
	// mentions to be density-reachable. Tight on purpose: same-day
	// mentions of one event should be near-identical.
	SameDaySimilarity float64 `yaml:"same_day_similarity"`

	// MinClusterSize for the density pass; singleton events are valid
	MinClusterSize int `yaml:"min_cluster_size"`

	// RefineAbove: clusters with more distinct raw names than this are
	// submitted to the classifier for a split check
	RefineAbove int `yaml:"refine_above"`

	// MaxNamesToClassifier caps how many distinct names one split check sends
	MaxNamesToClassifier int `yaml:"max_names_to_classifier"`

	// Stoplist of generic terms removed during name normalization
	Stoplist []string `yaml:"stoplist"`
}

// ScoreWeights are the composite-score weights. Must sum to 1.
type ScoreWeights struct {
	Semantic      float64 `yaml:"semantic"`
	Temporal      float64 `yaml:"temporal"`
	SourceOverlap float64 `yaml:"source_overlap"`
	Entity        float64 `yaml:"entity"`
	Arc           float64 `yaml:"arc"`
}

// GapStep is one rung of the gap-size threshold adjustment ladder.
type GapStep struct {
	MaxDays int     `yaml:"max_days"`
	Adjust  float64 `yaml:"adjust"`
}

// GapRange is the expected gap-in-days range for a story phase.
type GapRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// LinkerConfig configures candidate retrieval, scoring and the decision rule.
type LinkerConfig struct {
	Weights ScoreWeights `yaml:"weights"`

	// BaseThreshold is the starting link threshold before adjustments
	BaseThreshold float64 `yaml:"base_threshold"`

	// MaxThreshold caps the adjusted threshold
	MaxThreshold float64 `yaml:"max_threshold"`

	// AmbiguityBand below the threshold where the classifier arbitrates
	AmbiguityBand float64 `yaml:"ambiguity_band"`

	// AmbiguityMaxGapDays: classifier arbitration only for gaps this short
	AmbiguityMaxGapDays int `yaml:"ambiguity_max_gap_days"`

	// MinPairConfidence required from a same-event judgment to link
	MinPairConfidence float64 `yaml:"min_pair_confidence"`

	// ContextAdjust shifts the threshold per mention context
	ContextAdjust map[MentionContext]float64 `yaml:"context_adjust"`

	// GapAdjust ladder, ascending by MaxDays; GapAdjustBeyond applies past
	// the last rung
	GapAdjust       []GapStep `yaml:"gap_adjust"`
	GapAdjustBeyond float64   `yaml:"gap_adjust_beyond"`

	// LookbackDays per mention context bounds candidate retrieval
	LookbackDays map[MentionContext]int `yaml:"lookback_days"`

	// OriginWeight and KeywordWeight combine into the entity-consistency
	// signal; must sum to 1
	OriginWeight  float64 `yaml:"origin_weight"`
	KeywordWeight float64 `yaml:"keyword_weight"`

	// PhaseGapRanges: expected days between mentions per candidate phase
	PhaseGapRanges map[StoryPhase]GapRange `yaml:"phase_gap_ranges"`

	// StalenessDays: events silent longer than this are swept to dormant
	StalenessDays int `yaml:"staleness_days"`

	// TrailingWindowDays and peak/developing cutoffs drive phase recompute
	TrailingWindowDays  int `yaml:"trailing_window_days"`
	PeakMentions        int `yaml:"peak_mentions"`
	DevelopingMentions  int `yaml:"developing_mentions"`
	EmergingMaxDays     int `yaml:"emerging_max_days"`
	ActiveMaxGapDays    int `yaml:"active_max_gap_days"`
	FadingMaxGapDays    int `yaml:"fading_max_gap_days"`
}

// StoreConfig selects and configures the canonical event store backend.
type StoreConfig struct {
	// Driver: "memory" or "sqlite"
	Driver string `yaml:"driver"`

	// Path to the SQLite database file (":memory:" for ephemeral)
	Path string `yaml:"path,omitempty"`
}

// ConcurrencyConfig bounds cross-entity parallelism and unit retries.
type ConcurrencyConfig struct {
	// EntityWorkers: distinct origin entities processed in parallel
	EntityWorkers int `yaml:"entity_workers"`

	// UnitRetries on embedding (fatal) failures before giving up on a unit
	UnitRetries int `yaml:"unit_retries"`

	// RetryBackoff is the initial backoff, doubled per attempt
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:      "openai",
			Model:         "text-embedding-3-small",
			Timeout:       60 * time.Second,
			CacheTTL:      24 * time.Hour,
			RatePerSecond: 2,
			Burst:         5,
		},
		Classifier: ClassifierConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			Timeout:   30 * time.Second,
			MaxTokens: 500,
		},
		Cluster: ClusterConfig{
			SameDaySimilarity:    0.85,
			MinClusterSize:       1,
			RefineAbove:          3,
			MaxNamesToClassifier: 10,
			Stoplist: []string{
				"forum", "meeting", "summit", "conference", "cooperation",
				"event", "ceremony", "session", "dialogue",
			},
		},
		Linker: LinkerConfig{
			Weights: ScoreWeights{
				Semantic:      0.30,
				Temporal:      0.20,
				SourceOverlap: 0.15,
				Entity:        0.20,
				Arc:           0.15,
			},
			BaseThreshold:       0.75,
			MaxThreshold:        0.95,
			AmbiguityBand:       0.10,
			AmbiguityMaxGapDays: 7,
			MinPairConfidence:   0.7,
			ContextAdjust: map[MentionContext]float64{
				ContextAnnouncement: 0.10,
				ContextPreparation:  0.00,
				ContextExecution:    0.00,
				ContextContinuation: -0.05,
				ContextAftermath:    0.05,
				ContextGeneral:      0.00,
			},
			GapAdjust: []GapStep{
				{MaxDays: 3, Adjust: 0.00},
				{MaxDays: 7, Adjust: 0.05},
				{MaxDays: 14, Adjust: 0.10},
				{MaxDays: 30, Adjust: 0.15},
			},
			GapAdjustBeyond: 0.20,
			LookbackDays: map[MentionContext]int{
				ContextAnnouncement: 60,
				ContextPreparation:  45,
				ContextExecution:    10,
				ContextContinuation: 7,
				ContextAftermath:    14,
				ContextGeneral:      21,
			},
			OriginWeight:  0.4,
			KeywordWeight: 0.6,
			PhaseGapRanges: map[StoryPhase]GapRange{
				PhaseEmerging:   {Min: 1, Max: 5},
				PhaseDeveloping: {Min: 1, Max: 3},
				PhasePeak:       {Min: 1, Max: 2},
				PhaseActive:     {Min: 1, Max: 7},
				PhaseFading:     {Min: 3, Max: 21},
				PhaseDormant:    {Min: 14, Max: 60},
			},
			StalenessDays:      30,
			TrailingWindowDays: 7,
			PeakMentions:       4,
			DevelopingMentions: 2,
			EmergingMaxDays:    2,
			ActiveMaxGapDays:   14,
			FadingMaxGapDays:   30,
		},
		Store: StoreConfig{
			Driver: "memory",
		},
		Concurrency: ConcurrencyConfig{
			EntityWorkers: 4,
			UnitRetries:   3,
			RetryBackoff:  2 * time.Second,
		},
	}
}

// Validate checks the configuration for internal consistency. Called once at
// startup; the engine assumes a validated config everywhere else.
func (c *Config) Validate() error {
	w := c.Linker.Weights
	sum := w.Semantic + w.Temporal + w.SourceOverlap + w.Entity + w.Arc
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("linker weights must sum to 1.0, got %.4f", sum)
	}
	if c.Linker.BaseThreshold <= 0 || c.Linker.BaseThreshold > 1 {
		return fmt.Errorf("base threshold must be in (0,1], got %.2f", c.Linker.BaseThreshold)
	}
	if c.Linker.MaxThreshold < c.Linker.BaseThreshold || c.Linker.MaxThreshold > 1 {
		return fmt.Errorf("max threshold must be in [base,1], got %.2f", c.Linker.MaxThreshold)
	}
	if c.Linker.AmbiguityBand < 0 || c.Linker.AmbiguityBand >= c.Linker.BaseThreshold {
		return fmt.Errorf("ambiguity band must be in [0,base), got %.2f", c.Linker.AmbiguityBand)
	}
	if math.Abs(c.Linker.OriginWeight+c.Linker.KeywordWeight-1.0) > 1e-9 {
		return fmt.Errorf("entity-consistency weights must sum to 1.0")
	}
	for _, ctx := range Contexts() {
		if _, ok := c.Linker.LookbackDays[ctx]; !ok {
			return fmt.Errorf("lookback window missing for context %q", ctx)
		}
		if _, ok := c.Linker.ContextAdjust[ctx]; !ok {
			return fmt.Errorf("context adjustment missing for context %q", ctx)
		}
	}
	if c.Linker.LookbackDays[ContextContinuation] <= 0 {
		return fmt.Errorf("lookback windows must be positive")
	}
	for i := 1; i < len(c.Linker.GapAdjust); i++ {
		if c.Linker.GapAdjust[i].MaxDays <= c.Linker.GapAdjust[i-1].MaxDays {
			return fmt.Errorf("gap adjustment ladder must ascend by max_days")
		}
	}
	for _, phase := range []StoryPhase{PhaseEmerging, PhaseDeveloping, PhasePeak, PhaseActive, PhaseFading, PhaseDormant} {
		r, ok := c.Linker.PhaseGapRanges[phase]
		if !ok {
			return fmt.Errorf("phase gap range missing for phase %q", phase)
		}
		if r.Min <= 0 || r.Max < r.Min {
			return fmt.Errorf("phase gap range invalid for phase %q", phase)
		}
	}
	if c.Cluster.SameDaySimilarity <= 0 || c.Cluster.SameDaySimilarity >= 1 {
		return fmt.Errorf("same-day similarity must be in (0,1), got %.2f", c.Cluster.SameDaySimilarity)
	}
	if c.Cluster.MinClusterSize < 1 {
		return fmt.Errorf("minimum cluster size must be at least 1")
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("sqlite store requires a path")
		}
	default:
		return fmt.Errorf("unknown store driver %q (supported: memory, sqlite)", c.Store.Driver)
	}
	if c.Concurrency.EntityWorkers < 1 {
		return fmt.Errorf("entity workers must be at least 1")
	}
	return nil
}
