// Package link scores daily mentions against canonical event candidates and
// decides, per mention, between linking to an existing event and creating a
// new one.
package link

import (
	"sort"
	"strings"
)

// gazetteer lists the named actors the entity-consistency signal recognizes:
// countries, multilateral initiatives and frequently covered capitals. Longer
// phrases are matched before their substrings.
var gazetteer = []string{
	// multilateral initiatives and blocs
	"belt and road", "brics", "shanghai cooperation", "african union",
	"arab league", "european union", "gulf cooperation council",
	"asean", "g20", "g7", "united nations", "world bank", "imf",
	"forum on china-africa cooperation", "focac",

	// countries
	"china", "egypt", "russia", "india", "brazil", "south africa",
	"saudi arabia", "united arab emirates", "qatar", "turkey", "iran",
	"iraq", "israel", "jordan", "lebanon", "syria", "libya", "tunisia",
	"algeria", "morocco", "sudan", "ethiopia", "kenya", "nigeria",
	"ghana", "tanzania", "uganda", "zambia", "zimbabwe", "angola",
	"pakistan", "bangladesh", "sri lanka", "indonesia", "malaysia",
	"thailand", "vietnam", "philippines", "kazakhstan", "uzbekistan",
	"united states", "united kingdom", "france", "germany", "italy",
	"japan", "south korea", "australia", "canada", "mexico", "argentina",

	// cities that stand in for their governments in coverage
	"beijing", "cairo", "moscow", "riyadh", "abu dhabi", "dubai",
	"ankara", "tehran", "new delhi", "islamabad", "jakarta", "nairobi",
	"addis ababa", "johannesburg", "alexandria", "shanghai", "suez",
	"washington", "london", "paris", "berlin", "tokyo", "seoul",
}

// ExtractEntities returns the gazetteer terms present in text, lowercase and
// sorted. Matching is plain substring containment over the lowered text.
func ExtractEntities(text string) []string {
	lowered := strings.ToLower(text)
	seen := make(map[string]bool)
	for _, term := range gazetteer {
		if strings.Contains(lowered, term) {
			seen[term] = true
		}
	}

	out := make([]string, 0, len(seen))
	for term := range seen {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}

// jaccard returns |a ∩ b| / |a ∪ b| over string sets; 0 when both are empty.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	inter := 0
	union := len(set)
	seen := make(map[string]bool, len(b))
	for _, s := range b {
		if seen[s] {
			continue
		}
		seen[s] = true
		if set[s] {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
