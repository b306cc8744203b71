package model

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// RawMention is one (document, event-name) pair for a single day.
// Produced entirely by the upstream ingestion layer; never mutated here.
type RawMention struct {
	DocID        string   `json:"doc_id"`
	EventName    string   `json:"event_name"`
	Text         string   `json:"text"`
	Publisher    string   `json:"publisher"`
	OriginEntity string   `json:"origin_entity"`
	Categories   []string `json:"categories,omitempty"`
	Recipients   []string `json:"recipients,omitempty"`
}

// MentionContext classifies what stage of a story a day's coverage represents.
type MentionContext string

const (
	ContextAnnouncement MentionContext = "announcement"
	ContextPreparation  MentionContext = "preparation"
	ContextExecution    MentionContext = "execution"
	ContextContinuation MentionContext = "continuation"
	ContextAftermath    MentionContext = "aftermath"
	ContextGeneral      MentionContext = "general"
)

// Contexts lists all mention contexts in classification priority order.
func Contexts() []MentionContext {
	return []MentionContext{
		ContextAnnouncement,
		ContextPreparation,
		ContextExecution,
		ContextContinuation,
		ContextAftermath,
		ContextGeneral,
	}
}

// DailyEventMention is the output of same-day consolidation for one cluster.
// Created once per cluster per day; only CanonicalEventID is set afterwards.
type DailyEventMention struct {
	ID              string         `json:"id"`
	MentionDate     time.Time      `json:"mention_date"`
	OriginEntity    string         `json:"origin_entity"`
	ArticleCount    int            `json:"article_count"`
	Headline        string         `json:"headline"`
	Sources         []string       `json:"sources"`
	SourceDiversity float64        `json:"source_diversity"`
	DocIDs          []string       `json:"doc_ids"`
	Context         MentionContext `json:"context"`

	// CanonicalEventID references the canonical event this mention was
	// linked to. Empty until linking for its date completes.
	CanonicalEventID string `json:"canonical_event_id,omitempty"`
}

// MentionID derives a deterministic identifier for a daily mention from its
// date, origin entity and contributing documents. Replaying the same unit
// yields the same IDs, which is what makes replay idempotent at the store.
func MentionID(date time.Time, entity string, docIDs []string) string {
	ids := make([]string, len(docIDs))
	copy(ids, docIDs)
	sort.Strings(ids)

	h := sha256.New()
	h.Write([]byte(Day(date).Format(DateLayout)))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.ToLower(entity)))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.Join(ids, ",")))
	return hex.EncodeToString(h.Sum(nil))
}

// DateLayout is the canonical wire format for mention dates.
const DateLayout = "2006-01-02"

// Day truncates a timestamp to its UTC calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole days from a to b (positive when b is later).
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}
