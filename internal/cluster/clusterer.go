// Package cluster consolidates one day's raw event mentions into candidate
// event clusters: name normalization, one batched embedding call, a density
// pass over cosine distance, then classifier refinement of ambiguous clusters.
package cluster

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/classify"
	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/embed"
	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/model"
)

// DailyClusterer partitions one (date, origin entity) batch of raw mentions
// into clusters, each intended to represent one distinct event.
type DailyClusterer struct {
	embedder   embed.Embedder
	classifier classify.Classifier // nil: refinement disabled, clusters kept whole
	cfg        model.ClusterConfig
	logger     *slog.Logger
}

// New creates a daily clusterer. The classifier may be nil.
func New(embedder embed.Embedder, classifier classify.Classifier, cfg model.ClusterConfig, logger *slog.Logger) *DailyClusterer {
	if logger == nil {
		logger = slog.Default()
	}
	return &DailyClusterer{
		embedder:   embedder,
		classifier: classifier,
		cfg:        cfg,
		logger:     logger,
	}
}

// Cluster partitions mentions into clusters. The returned clusters cover
// every usable input mention exactly once. Mentions with an empty event name
// are skipped and logged (upstream-data error). An embedding failure is
// fatal for the batch: no partial clustering is ever returned.
func (c *DailyClusterer) Cluster(ctx context.Context, mentions []model.RawMention) ([][]model.RawMention, error) {
	usable := make([]model.RawMention, 0, len(mentions))
	for _, m := range mentions {
		if m.EventName == "" {
			c.logger.Warn("skipping mention with empty event name", "doc_id", m.DocID)
			continue
		}
		usable = append(usable, m)
	}
	if len(usable) == 0 {
		return nil, nil
	}

	names := make([]string, len(usable))
	for i, m := range usable {
		normalized := NormalizeName(m.EventName, c.cfg.Stoplist)
		if normalized == "" {
			// Stoplist ate the whole name; embed the raw name instead.
			normalized = m.EventName
		}
		names[i] = normalized
	}

	vecs, err := c.embedder.Embed(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("embed %d names: %w", len(names), err)
	}

	eps := 1 - c.cfg.SameDaySimilarity
	var clusters [][]model.RawMention
	for _, idxs := range densityClusters(vecs, eps, c.cfg.MinClusterSize) {
		group := make([]model.RawMention, len(idxs))
		for i, idx := range idxs {
			group[i] = usable[idx]
		}
		clusters = append(clusters, c.refine(ctx, group)...)
	}
	return clusters, nil
}

// refine runs the classifier split check on an ambiguous cluster. Failure
// degrades to keeping the cluster whole; mentions are never dropped.
func (c *DailyClusterer) refine(ctx context.Context, cluster []model.RawMention) [][]model.RawMention {
	distinct := distinctNames(cluster)
	if len(distinct) <= c.cfg.RefineAbove || c.classifier == nil {
		return [][]model.RawMention{cluster}
	}

	submitted := distinct
	if len(submitted) > c.cfg.MaxNamesToClassifier {
		submitted = submitted[:c.cfg.MaxNamesToClassifier]
	}

	result := c.classifier.SplitCluster(ctx, submitted)
	switch result.Outcome {
	case classify.SplitGroups:
		return splitByNames(cluster, submitted, result.Groups)
	case classify.SplitFailed:
		c.logger.Warn("cluster split check failed, keeping cluster intact",
			"distinct_names", len(distinct), "error", result.Err)
		return [][]model.RawMention{cluster}
	default:
		return [][]model.RawMention{cluster}
	}
}

// distinctNames returns the cluster's distinct raw names in first-occurrence
// order.
func distinctNames(cluster []model.RawMention) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range cluster {
		if !seen[m.EventName] {
			seen[m.EventName] = true
			names = append(names, m.EventName)
		}
	}
	return names
}

// splitByNames partitions the cluster using the classifier's index groups
// over the submitted names. Mentions whose name was not submitted (beyond
// the classifier cap) or not covered by any group stay with the first group
// so that coverage is preserved.
func splitByNames(cluster []model.RawMention, submitted []string, groups [][]int) [][]model.RawMention {
	nameGroup := make(map[string]int)
	for gi, group := range groups {
		for _, idx := range group {
			if idx >= 0 && idx < len(submitted) {
				nameGroup[submitted[idx]] = gi
			}
		}
	}

	parts := make([][]model.RawMention, len(groups))
	for _, m := range cluster {
		gi, ok := nameGroup[m.EventName]
		if !ok {
			gi = 0
		}
		parts[gi] = append(parts[gi], m)
	}

	var out [][]model.RawMention
	for _, p := range parts {
		if len(p) > 0 {
			out = append(out, p)
		}
	}
	return out
}
