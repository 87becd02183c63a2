package analysis

import (
	"cmp"
	"slices"

	"github.com/tphakala/livesound/internal/results"
)

// Rank pairs scores with labels, clamps scores below threshold to zero,
// orders by descending score and keeps the first count entries. Equal scores
// keep label table order. Missing labels are left empty.
func Rank(scores []float32, labels []string, threshold float32, count int) []results.Category {
	categories := make([]results.Category, len(scores))
	for i, score := range scores {
		if score < threshold {
			score = 0
		}
		var label string
		if i < len(labels) {
			label = labels[i]
		}
		categories[i] = results.Category{Index: i, Label: label, Score: score}
	}

	slices.SortStableFunc(categories, func(a, b results.Category) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if count >= 0 && len(categories) > count {
		categories = categories[:count:count]
	}
	return categories
}
