// Package pipeline orchestrates the two consolidation stages over (date,
// origin entity) units: same-day clustering into daily mentions, then
// temporal linking into canonical events. Entities run in parallel; dates for
// one entity replay strictly in order.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/cache"
	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/classify"
	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/cluster"
	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/embed"
	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/link"
	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/mention"
	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/metrics"
	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/model"
	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/store"
	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/worker"
)

// Pipeline wires the clusterer, mention builder and linker over a store.
type Pipeline struct {
	source    MentionSource
	clusterer *cluster.DailyClusterer
	builder   *mention.Builder
	linker    *link.Linker
	store     store.EventStore
	metrics   *metrics.Registry
	cfg       *model.Config
	logger    *slog.Logger
}

// New builds the full pipeline from configuration: embedding provider with
// throttling and caching layers, optional classifier, store backend.
func New(cfg *model.Config, source MentionSource, st store.EventStore, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	embedder, err := buildEmbedder(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("build embedder: %w", err)
	}

	classifier, err := classify.NewClassifier(cfg.Classifier)
	if err != nil {
		return nil, fmt.Errorf("build classifier: %w", err)
	}
	if classifier == nil {
		logger.Info("classifier disabled, ambiguous cases use fail-safe defaults")
	}

	return &Pipeline{
		source:    source,
		clusterer: cluster.New(embedder, classifier, cfg.Cluster, logger),
		builder:   mention.NewBuilder(),
		linker:    link.New(embedder, classifier, cfg.Linker, logger),
		store:     st,
		metrics:   metrics.NewRegistry(),
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// buildEmbedder stacks the configured layers over the raw provider:
// throttling below caching, so cache hits never spend rate-limit tokens.
func buildEmbedder(cfg model.EmbeddingConfig) (embed.Embedder, error) {
	embedder, err := embed.NewEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.RatePerSecond > 0 {
		embedder = embed.NewThrottled(embedder, cfg.RatePerSecond, cfg.Burst)
	}

	if cfg.CacheTTL > 0 {
		var c cache.Cache = cache.NewMemoryCache(cfg.CacheTTL, 10*time.Minute)
		if cfg.CacheDir != "" {
			c = cache.NewLayeredCache(cfg.CacheTTL, cfg.CacheDir, cfg.CacheTTL)
		}
		embedder = embed.NewCached(embedder, c, cfg.Model, cfg.CacheTTL)
	}
	return embedder, nil
}

// UnitResult reports one (date, origin entity) unit. Failed units are
// reported individually so a replay can target exactly what did not commit.
type UnitResult struct {
	Date     time.Time
	Entity   string
	Mentions int
	Linked   int
	Created  int
	Swept    int
	Err      error
}

// RunReport is the outcome of one consolidation run.
type RunReport struct {
	Units []UnitResult
}

// Failed returns the units that did not commit.
func (r *RunReport) Failed() []UnitResult {
	var failed []UnitResult
	for _, u := range r.Units {
		if u.Err != nil {
			failed = append(failed, u)
		}
	}
	return failed
}

// Metrics exposes the run counters.
func (p *Pipeline) Metrics() *metrics.Registry {
	return p.metrics
}

// Run consolidates every unit in [from, to] for the given entities (all
// entities in the source when the list is empty). Entities are processed in
// parallel; one entity's failure never aborts the others.
func (p *Pipeline) Run(ctx context.Context, from, to time.Time, entities []string) (*RunReport, error) {
	if len(entities) == 0 {
		var err error
		entities, err = p.source.Entities(ctx)
		if err != nil {
			return nil, fmt.Errorf("list entities: %w", err)
		}
	}

	results := make(map[string][]UnitResult, len(entities))
	var order []string

	pool := worker.NewPool(p.cfg.Concurrency.EntityWorkers)
	pool.Start(ctx)

	resultCh := make(chan []UnitResult, len(entities))
	for _, entity := range entities {
		order = append(order, entity)
		entity := entity
		pool.Submit(ctx, worker.Job{
			Name: entity,
			Run: func(ctx context.Context) error {
				units, err := p.runEntity(ctx, entity, from, to)
				resultCh <- units
				return err
			},
		})
	}
	pool.Wait()
	close(resultCh)

	for units := range resultCh {
		if len(units) > 0 {
			results[units[0].Entity] = units
		}
	}

	report := &RunReport{}
	for _, entity := range order {
		report.Units = append(report.Units, results[entity]...)
	}
	return report, nil
}

// runEntity replays the entity's dates chronologically. A failed unit is
// recorded and processing continues with the next date: later units may
// still commit, and the report tells the operator exactly what to replay.
func (p *Pipeline) runEntity(ctx context.Context, entity string, from, to time.Time) ([]UnitResult, error) {
	dates, err := p.source.Dates(ctx, entity)
	if err != nil {
		return []UnitResult{{Entity: entity, Err: fmt.Errorf("list dates: %w", err)}}, err
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	var units []UnitResult
	var firstErr error
	for _, date := range dates {
		day := model.Day(date)
		if !from.IsZero() && day.Before(model.Day(from)) {
			continue
		}
		if !to.IsZero() && day.After(model.Day(to)) {
			continue
		}

		unit := p.processUnitWithRetry(ctx, entity, day)
		units = append(units, unit)
		if unit.Err != nil {
			p.metrics.Add(metrics.UnitsFailed, entity, 1)
			if firstErr == nil {
				firstErr = unit.Err
			}
			continue
		}
		p.metrics.Add(metrics.UnitsProcessed, entity, 1)
	}
	return units, firstErr
}

// processUnitWithRetry retries a failed unit with doubling backoff. Every
// attempt replays the whole unit; committed units are never retried.
func (p *Pipeline) processUnitWithRetry(ctx context.Context, entity string, date time.Time) UnitResult {
	attempts := p.cfg.Concurrency.UnitRetries
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.cfg.Concurrency.RetryBackoff

	var unit UnitResult
	for attempt := 1; attempt <= attempts; attempt++ {
		unit = p.processUnit(ctx, entity, date)
		if unit.Err == nil || ctx.Err() != nil {
			return unit
		}

		p.logger.Warn("unit failed",
			"entity", entity,
			"date", date.Format(model.DateLayout),
			"attempt", attempt,
			"error", unit.Err)

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return unit
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return unit
}

// processUnit runs one (date, entity) unit inside a store transaction. On any
// error the transaction rolls back: no partial mutation is ever visible.
func (p *Pipeline) processUnit(ctx context.Context, entity string, date time.Time) UnitResult {
	result := UnitResult{Date: date, Entity: entity}

	raw, err := p.source.Mentions(ctx, entity, date)
	if err != nil {
		result.Err = fmt.Errorf("load mentions: %w", err)
		return result
	}
	if len(raw) == 0 {
		return result
	}

	clusters, err := p.clusterer.Cluster(ctx, raw)
	if err != nil {
		result.Err = fmt.Errorf("cluster: %w", err)
		return result
	}

	tx, err := p.store.Begin(ctx, entity)
	if err != nil {
		result.Err = fmt.Errorf("begin unit: %w", err)
		return result
	}

	for _, cl := range clusters {
		dm, err := p.builder.Build(cl, date)
		if err != nil {
			_ = tx.Rollback()
			result.Err = fmt.Errorf("build mention: %w", err)
			return result
		}

		decision, err := p.linker.Link(ctx, tx, dm)
		if err != nil {
			_ = tx.Rollback()
			result.Err = fmt.Errorf("link mention %s: %w", dm.ID, err)
			return result
		}

		result.Mentions++
		p.metrics.Add(metrics.MentionsBuilt, entity, 1)
		switch decision.Action {
		case link.ActionLinked:
			result.Linked++
			p.metrics.Add(metrics.EventsLinked, entity, 1)
		case link.ActionCreated:
			result.Created++
			p.metrics.Add(metrics.EventsCreated, entity, 1)
		}
		if decision.Arbitrated {
			p.metrics.Add(metrics.Arbitrations, entity, 1)
		}
	}

	if err := tx.Commit(); err != nil {
		result.Err = fmt.Errorf("commit unit: %w", err)
		return result
	}

	swept, err := p.store.SweepStale(ctx, entity, date, p.cfg.Linker.StalenessDays)
	if err != nil {
		// The unit itself committed; a failed sweep repeats next date.
		p.logger.Warn("staleness sweep failed",
			"entity", entity, "date", date.Format(model.DateLayout), "error", err)
	} else {
		result.Swept = swept
		p.metrics.Add(metrics.EventsSwept, entity, int64(swept))
	}

	p.logger.Info("unit committed",
		"entity", entity,
		"date", date.Format(model.DateLayout),
		"mentions", result.Mentions,
		"linked", result.Linked,
		"created", result.Created,
		"swept", result.Swept)
	return result
}
