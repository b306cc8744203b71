// Package classify resolves ambiguous event-identity questions with an LLM.
// Responses are modeled as tagged results so every fail-safe path is explicit:
// a failed split keeps the cluster whole, a failed pair judgment means
// "different event". Classifier failure is never fatal for a processing unit.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// SplitOutcome tags the result of a cluster split check.
type SplitOutcome int

const (
	// SplitUnchanged: the classifier judged all names to be one event.
	SplitUnchanged SplitOutcome = iota
	// SplitGroups: the classifier returned distinct event groups.
	SplitGroups
	// SplitFailed: transport error, timeout or malformed response.
	// The caller keeps the cluster intact.
	SplitFailed
)

// SplitResult is the tagged outcome of SplitCluster.
type SplitResult struct {
	Outcome SplitOutcome
	// Groups holds index lists into the submitted name slice, set only
	// when Outcome is SplitGroups.
	Groups [][]int
	// Err carries the failure cause when Outcome is SplitFailed.
	Err error
}

// PairQuestion carries both records' context for a same-event judgment.
type PairQuestion struct {
	NewHeadline       string
	NewSummary        string
	NewContext        string
	CandidateName     string
	CandidateAltNames []string
	CandidateHistory  string
	Score             float64
	GapDays           int
}

// PairJudgment is the structured answer to a pairwise same-event question.
type PairJudgment struct {
	SameEvent   bool    `json:"is_same_event"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// Classifier defines the interface for text classification providers.
type Classifier interface {
	// Name returns the provider name
	Name() string

	// SplitCluster asks whether the given distinct event names describe
	// one event or several. Never returns an error; failures are tagged.
	SplitCluster(ctx context.Context, names []string) SplitResult

	// JudgePair asks whether a new daily mention and an existing
	// canonical event are the same real-world event. An error means the
	// caller must apply its fail-safe default (different event).
	JudgePair(ctx context.Context, q PairQuestion) (PairJudgment, error)
}

// buildSplitPrompt renders the cluster-split question.
func buildSplitPrompt(names []string) string {
	var b strings.Builder
	b.WriteString("These event names were extracted from news articles published on the same day in the same country:\n")
	for i, name := range names {
		fmt.Fprintf(&b, "%d. %s\n", i, name)
	}
	b.WriteString(`
Do all of these names refer to the SAME real-world event, or to several distinct events?

Respond with JSON only, no other text:
{"same_event": true, "groups": [[0, 1, 2]]}
or
{"same_event": false, "groups": [[0, 2], [1]]}

Every index from 0 to ` + fmt.Sprint(len(names)-1) + ` must appear in exactly one group.`)
	return b.String()
}

// buildPairPrompt renders the pairwise same-event question.
func buildPairPrompt(q PairQuestion) string {
	alt := "(none)"
	if len(q.CandidateAltNames) > 0 {
		alt = strings.Join(q.CandidateAltNames, "; ")
	}
	return fmt.Sprintf(`A news tracking system needs to decide whether today's coverage belongs to an event it is already tracking.

Tracked event:
- Canonical name: %s
- Alternative names: %s
- Recent history: %s

Today's mention:
- Headline: %s
- Summary: %s
- Coverage stage: %s

Computed similarity score: %.2f (ambiguous range). Days since the tracked event was last mentioned: %d.

Are these the same real-world event? Respond with JSON only, no other text:
{"is_same_event": true, "confidence": 0.85, "explanation": "one short sentence"}`,
		q.CandidateName, alt, q.CandidateHistory,
		q.NewHeadline, q.NewSummary, q.NewContext,
		q.Score, q.GapDays)
}

// extractJSON pulls the first JSON object out of a chat response, tolerating
// markdown fences and surrounding prose.
func extractJSON(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in response")
	}
	return text[start : end+1], nil
}

type splitResponse struct {
	SameEvent bool    `json:"same_event"`
	Groups    [][]int `json:"groups"`
}

// parseSplitResponse validates a raw split answer against the submitted name
// count. Incomplete or overlapping groups are a malformed response.
func parseSplitResponse(raw string, nameCount int) (SplitResult, error) {
	payload, err := extractJSON(raw)
	if err != nil {
		return SplitResult{}, err
	}

	var resp splitResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return SplitResult{}, fmt.Errorf("decode split response: %w", err)
	}

	if resp.SameEvent || len(resp.Groups) <= 1 {
		return SplitResult{Outcome: SplitUnchanged}, nil
	}

	seen := make(map[int]bool, nameCount)
	for _, group := range resp.Groups {
		if len(group) == 0 {
			return SplitResult{}, fmt.Errorf("empty group in split response")
		}
		for _, idx := range group {
			if idx < 0 || idx >= nameCount {
				return SplitResult{}, fmt.Errorf("index %d out of range in split response", idx)
			}
			if seen[idx] {
				return SplitResult{}, fmt.Errorf("index %d appears in two groups", idx)
			}
			seen[idx] = true
		}
	}
	if len(seen) != nameCount {
		return SplitResult{}, fmt.Errorf("split response covers %d of %d names", len(seen), nameCount)
	}

	groups := make([][]int, len(resp.Groups))
	for i, g := range resp.Groups {
		groups[i] = append([]int(nil), g...)
		sort.Ints(groups[i])
	}
	return SplitResult{Outcome: SplitGroups, Groups: groups}, nil
}

// parsePairResponse decodes a pairwise judgment, clamping confidence to [0,1].
func parsePairResponse(raw string) (PairJudgment, error) {
	payload, err := extractJSON(raw)
	if err != nil {
		return PairJudgment{}, err
	}

	var j PairJudgment
	if err := json.Unmarshal([]byte(payload), &j); err != nil {
		return PairJudgment{}, fmt.Errorf("decode pair response: %w", err)
	}
	if j.Confidence < 0 {
		j.Confidence = 0
	}
	if j.Confidence > 1 {
		j.Confidence = 1
	}
	return j, nil
}
