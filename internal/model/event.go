package model

import "time"

// StoryPhase is a coarse lifecycle label for how actively a canonical event
// is currently being mentioned.
type StoryPhase string

const (
	PhaseEmerging   StoryPhase = "emerging"
	PhaseDeveloping StoryPhase = "developing"
	PhasePeak       StoryPhase = "peak"
	PhaseActive     StoryPhase = "active"
	PhaseFading     StoryPhase = "fading"
	PhaseDormant    StoryPhase = "dormant"
)

// ValidPhase reports whether s is one of the six story phases.
func ValidPhase(s StoryPhase) bool {
	switch s {
	case PhaseEmerging, PhaseDeveloping, PhasePeak, PhaseActive, PhaseFading, PhaseDormant:
		return true
	}
	return false
}

// CanonicalEvent is the persistent, multi-day identity of a real-world event.
// Mutated only by the Temporal Linker; never deleted. Dormant events remain
// queryable but are excluded as link candidates.
type CanonicalEvent struct {
	ID               string         `json:"id"`
	CanonicalName    string         `json:"canonical_name"`
	OriginEntity     string         `json:"origin_entity"`
	FirstMentionDate time.Time      `json:"first_mention_date"`
	LastMentionDate  time.Time      `json:"last_mention_date"`
	MentionDays      int            `json:"mention_days"`
	TotalArticles    int            `json:"total_articles"`
	PeakArticles     int            `json:"peak_articles"`
	PeakDate         time.Time      `json:"peak_date"`
	Publishers       []string       `json:"publishers"`
	AlternativeNames []string       `json:"alternative_names"`
	MentionDates     []time.Time    `json:"mention_dates"`
	LastContext      MentionContext `json:"last_context"`
	Phase            StoryPhase     `json:"phase"`
}

// DaysSinceLastMention returns whole days between the event's last mention
// and the given processing date.
func (e *CanonicalEvent) DaysSinceLastMention(date time.Time) int {
	return DaysBetween(e.LastMentionDate, date)
}

// MentionsInWindow counts mention days within the trailing window ending at
// date (inclusive), window expressed in days.
func (e *CanonicalEvent) MentionsInWindow(date time.Time, window int) int {
	cutoff := Day(date).AddDate(0, 0, -(window - 1))
	n := 0
	for _, d := range e.MentionDates {
		day := Day(d)
		if !day.Before(cutoff) && !day.After(Day(date)) {
			n++
		}
	}
	return n
}

// Clone returns a deep copy. Store implementations hand out clones so that
// callers can never mutate registry state outside a unit transaction.
func (e *CanonicalEvent) Clone() *CanonicalEvent {
	cp := *e
	cp.Publishers = append([]string(nil), e.Publishers...)
	cp.AlternativeNames = append([]string(nil), e.AlternativeNames...)
	cp.MentionDates = append([]time.Time(nil), e.MentionDates...)
	return &cp
}
