package framework

import (
	"strings"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
)

// Item matching builds comparison keys from a category discriminant plus a
// normalized description prefix. Two items from different models are
// considered the same finding iff their keys are equal.

const (
	gapKeyPrefixLen        = 30
	supplementKeyPrefixLen = 40
	lineItemKeyPrefixLen   = 50
)

func normalizeDesc(desc string, maxLen int) string {
	s := strings.ToLower(strings.TrimSpace(desc))
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}

func gapKey(g core.ScopeGap) string {
	return string(g.Category) + ":" + normalizeDesc(g.Description, gapKeyPrefixLen)
}

func supplementKey(s core.SupplementProposal) string {
	return s.Type + ":" + normalizeDesc(s.Description, supplementKeyPrefixLen)
}

func lineItemKey(item core.LineItem) string {
	return normalizeDesc(item.Description, lineItemKeyPrefixLen)
}

var (
	compassWords     = []string{"north", "south", "east", "west", "front", "back", "left", "right"}
	roofFeatureWords = []string{"ridge", "valley", "eave", "chimney", "skylight", "vent", "edge"}
)

// locationsSimilar applies the two-axis location heuristic for vision
// component matching. Each axis (compass direction, roof feature) must
// agree, where agreement includes neither hint mentioning any keyword on
// that axis.
func locationsSimilar(loc1, loc2 string) bool {
	l1 := strings.ToLower(loc1)
	l2 := strings.ToLower(loc2)
	return axisAgrees(l1, l2, compassWords) && axisAgrees(l1, l2, roofFeatureWords)
}

func axisAgrees(l1, l2 string, words []string) bool {
	var w1, w2 []string
	for _, w := range words {
		if strings.Contains(l1, w) {
			w1 = append(w1, w)
		}
		if strings.Contains(l2, w) {
			w2 = append(w2, w)
		}
	}
	if len(w1) == 0 && len(w2) == 0 {
		return true
	}
	for _, a := range w1 {
		for _, b := range w2 {
			if a == b {
				return true
			}
		}
	}
	return false
}

// disagreement is one detected mismatch between two result sets, rendered
// into debate prompts as JSON.
type disagreement map[string]any

// Disagreement tolerances.
const (
	severityScoreTolerance = 0.3  // absolute, on the [0,1] scale
	priceTolerance         = 0.20 // relative to the average of the two values
)

func unionStrings(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, s := range list {
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				out = append(out, s)
			}
		}
	}
	return out
}

func capConfidence(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	return v
}
