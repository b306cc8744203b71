package mention

import (
	"testing"
	"time"

	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/model"
)

var day = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func rawMention(doc, name, text, publisher string) model.RawMention {
	return model.RawMention{
		DocID:        doc,
		EventName:    name,
		Text:         text,
		Publisher:    publisher,
		OriginEntity: "china",
	}
}

func TestBuildAggregatesCluster(t *testing.T) {
	cluster := []model.RawMention{
		rawMention("d1", "China-Egypt Trade Forum", "the forum kicked off in Cairo", "Xinhua"),
		rawMention("d2", "China Egypt Trade Forum 2024", "trade forum underway", "Ahram"),
		rawMention("d3", "China-Egypt Trade Forum", "officials inaugurated the forum", "Xinhua"),
	}

	dm, err := NewBuilder().Build(cluster, day)
	if err != nil {
		t.Fatal(err)
	}

	if dm.ArticleCount != 3 {
		t.Errorf("ArticleCount = %d, want 3", dm.ArticleCount)
	}
	if dm.Headline != "China-Egypt Trade Forum" {
		t.Errorf("Headline = %q", dm.Headline)
	}
	if len(dm.Sources) != 2 {
		t.Errorf("Sources = %v, want 2 unique publishers", dm.Sources)
	}
	if want := 2.0 / 3.0; dm.SourceDiversity != want {
		t.Errorf("SourceDiversity = %v, want %v", dm.SourceDiversity, want)
	}
	if dm.Context != model.ContextExecution {
		t.Errorf("Context = %q, want execution", dm.Context)
	}
	if !dm.MentionDate.Equal(day) {
		t.Errorf("MentionDate = %v, want %v", dm.MentionDate, day)
	}
	if dm.CanonicalEventID != "" {
		t.Error("CanonicalEventID set before linking")
	}
}

func TestBuildDeterministicID(t *testing.T) {
	a := []model.RawMention{
		rawMention("d1", "Forum", "text", "Xinhua"),
		rawMention("d2", "Forum", "text", "Ahram"),
	}
	// Same documents, different order.
	b := []model.RawMention{a[1], a[0]}

	da, err := NewBuilder().Build(a, day)
	if err != nil {
		t.Fatal(err)
	}
	db, err := NewBuilder().Build(b, day)
	if err != nil {
		t.Fatal(err)
	}
	if da.ID != db.ID {
		t.Errorf("IDs differ for the same document set: %s vs %s", da.ID, db.ID)
	}
}

func TestBuildEmptyCluster(t *testing.T) {
	if _, err := NewBuilder().Build(nil, day); err == nil {
		t.Fatal("expected error for empty cluster")
	}
}

func TestSelectHeadlineTieBreaksByFirstOccurrence(t *testing.T) {
	cluster := []model.RawMention{
		rawMention("d1", "Cairo Water Week", "", "a"),
		rawMention("d2", "Cairo Water Week 2024", "", "b"),
		rawMention("d3", "Cairo Water Week 2024", "", "c"),
		rawMention("d4", "Cairo Water Week", "", "d"),
	}
	if got := selectHeadline(cluster); got != "Cairo Water Week" {
		t.Errorf("selectHeadline = %q, want first-seen name on tie", got)
	}
}

func TestClassifyContextPriorityOrder(t *testing.T) {
	tests := []struct {
		text string
		want model.MentionContext
	}{
		{"the ministry will host the exhibition next month", model.ContextAnnouncement},
		{"organizers completed final arrangements ahead of the expo", model.ContextPreparation},
		{"the summit kicked off this morning", model.ContextExecution},
		{"talks continued into a second day", model.ContextContinuation},
		{"the conference concluded with a joint statement", model.ContextAftermath},
		{"bilateral ties remain strong", model.ContextGeneral},
		// Announcement outranks aftermath when both match.
		{"officials announce a follow-up in the wake of the summit", model.ContextAnnouncement},
	}

	for _, tt := range tests {
		cluster := []model.RawMention{rawMention("d", "n", tt.text, "p")}
		if got := ClassifyContext(cluster); got != tt.want {
			t.Errorf("ClassifyContext(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
