// Package results defines classification results and fans them out to
// subscribers without ever blocking the producer.
package results

import "time"

// Category is one scored class.
type Category struct {
	Index int     `json:"index"`
	Label string  `json:"label"`
	Score float32 `json:"score"`
}

// ClassificationResult is one published inference outcome. Categories are
// sorted by descending score and hold at most the configured result count.
// A published result is shared by every subscriber and must not be modified.
type ClassificationResult struct {
	SessionID  string     `json:"sessionId"`
	Model      string     `json:"model"`
	Categories []Category `json:"categories"`
	LatencyMs  float64    `json:"latencyMs"` // classifier call duration
	Timestamp  time.Time  `json:"timestamp"`
}

// LatencyMillis converts a classifier call duration to the published unit.
func LatencyMillis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// Top returns the highest scoring category, if any.
func (r *ClassificationResult) Top() (Category, bool) {
	if r == nil || len(r.Categories) == 0 {
		return Category{}, false
	}
	return r.Categories[0], true
}
