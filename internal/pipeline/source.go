package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/model"
)

// MentionSource supplies raw mentions grouped by processing unit. Dates for
// one entity must come back in ascending order; the consolidation pipeline
// replays them chronologically and treats out-of-order dates as fatal.
type MentionSource interface {
	// Entities returns every origin entity the source has mentions for.
	Entities(ctx context.Context) ([]string, error)

	// Dates returns the entity's mention dates in ascending order.
	Dates(ctx context.Context, entity string) ([]time.Time, error)

	// Mentions returns the entity's raw mentions for one date.
	Mentions(ctx context.Context, entity string, date time.Time) ([]model.RawMention, error)
}

// sourceRecord is one JSONL line: a raw mention plus its publication date.
type sourceRecord struct {
	Date string `json:"date"`
	model.RawMention
}

// JSONLSource reads raw mentions from a JSON-lines file, one mention per
// line, and serves them grouped by (entity, date). The whole file is loaded
// up front; consolidation inputs are bounded by what one run covers.
type JSONLSource struct {
	byUnit map[string]map[string][]model.RawMention // entity -> date -> mentions
}

// OpenJSONL loads a mention file. Blank lines and lines starting with # are
// skipped; a malformed line is an error, not a skip, so that silent data loss
// never reaches clustering.
func OpenJSONL(path string) (*JSONLSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mention file: %w", err)
	}
	defer func() { _ = f.Close() }()

	src := &JSONLSource{byUnit: make(map[string]map[string][]model.RawMention)}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		var rec sourceRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("mention file line %d: %w", lineNo, err)
		}
		day, err := time.Parse(model.DateLayout, rec.Date)
		if err != nil {
			return nil, fmt.Errorf("mention file line %d: parse date %q: %w", lineNo, rec.Date, err)
		}
		if rec.OriginEntity == "" {
			return nil, fmt.Errorf("mention file line %d: missing origin entity", lineNo)
		}

		dateKey := day.Format(model.DateLayout)
		if src.byUnit[rec.OriginEntity] == nil {
			src.byUnit[rec.OriginEntity] = make(map[string][]model.RawMention)
		}
		src.byUnit[rec.OriginEntity][dateKey] = append(src.byUnit[rec.OriginEntity][dateKey], rec.RawMention)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read mention file: %w", err)
	}
	return src, nil
}

// Entities returns every origin entity in the file, sorted.
func (s *JSONLSource) Entities(_ context.Context) ([]string, error) {
	entities := make([]string, 0, len(s.byUnit))
	for entity := range s.byUnit {
		entities = append(entities, entity)
	}
	sort.Strings(entities)
	return entities, nil
}

// Dates returns the entity's mention dates in ascending order.
func (s *JSONLSource) Dates(_ context.Context, entity string) ([]time.Time, error) {
	byDate := s.byUnit[entity]
	keys := make([]string, 0, len(byDate))
	for key := range byDate {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	dates := make([]time.Time, len(keys))
	for i, key := range keys {
		day, err := time.Parse(model.DateLayout, key)
		if err != nil {
			return nil, fmt.Errorf("parse date %q: %w", key, err)
		}
		dates[i] = day
	}
	return dates, nil
}

// Mentions returns the entity's raw mentions for one date.
func (s *JSONLSource) Mentions(_ context.Context, entity string, date time.Time) ([]model.RawMention, error) {
	return s.byUnit[entity][model.Day(date).Format(model.DateLayout)], nil
}
