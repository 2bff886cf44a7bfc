// Package sentiment scores news headlines with a keyword lexicon. The scores
// feed the news-derived volatility used to widen forecast bounds; the
// narrative sentiment itself comes from the news analyst.
package sentiment

import (
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/seenimoa/stockpilot/pkg/models"
)

// bullish / bearish keyword dictionaries (lowercase).
var bullishWords = map[string]float64{
	"bullish": 0.7, "rally": 0.6, "surge": 0.7, "upbeat": 0.5,
	"positive": 0.4, "growth": 0.4, "upgrade": 0.6, "outperform": 0.6,
	"buy": 0.5, "strong": 0.4, "recovery": 0.5, "breakout": 0.6,
	"record high": 0.7, "all-time high": 0.7, "beat": 0.5,
	"exceeds": 0.5, "soar": 0.7, "jump": 0.5, "gain": 0.4,
	"profit": 0.3, "dividend": 0.4, "raises guidance": 0.6,
}

var bearishWords = map[string]float64{
	"bearish": 0.7, "crash": 0.8, "plunge": 0.7, "slump": 0.6,
	"negative": 0.4, "downgrade": 0.6, "underperform": 0.6,
	"sell": 0.5, "weak": 0.4, "decline": 0.5, "loss": 0.4,
	"selloff": 0.7, "fall": 0.4, "tumble": 0.6, "lawsuit": 0.5,
	"fraud": 0.8, "antitrust": 0.5, "investigation": 0.5,
	"cut": 0.3, "miss": 0.5, "warning": 0.5, "layoff": 0.4,
}

// Score is the lexicon score of one news item.
type Score struct {
	Headline    string
	Score       float64 // -1 bearish .. +1 bullish
	Confidence  float64
	PublishedAt time.Time
}

// ScoreHeadline returns a sentiment score for a single headline.
// Score ranges from -1.0 (very bearish) to +1.0 (very bullish).
func ScoreHeadline(headline string) (score float64, confidence float64) {
	lower := strings.ToLower(headline)

	bullScore := 0.0
	bearScore := 0.0
	matches := 0

	for word, weight := range bullishWords {
		if strings.Contains(lower, word) {
			bullScore += weight
			matches++
		}
	}
	for word, weight := range bearishWords {
		if strings.Contains(lower, word) {
			bearScore += weight
			matches++
		}
	}

	total := bullScore + bearScore
	if matches == 0 || total == 0 {
		return 0, 0.1 // no signal
	}

	score = (bullScore - bearScore) / total
	confidence = math.Min(float64(matches)*0.15+0.2, 0.85)
	return score, confidence
}

// ScoreItems scores the headline and summary of every item.
func ScoreItems(items []models.NewsItem) []Score {
	out := make([]Score, 0, len(items))
	for _, it := range items {
		text := it.Headline
		if it.Summary != "" {
			text += " " + it.Summary
		}
		s, c := ScoreHeadline(text)
		out = append(out, Score{Headline: it.Headline, Score: s, Confidence: c, PublishedAt: it.PublishedAt})
	}
	return out
}

// Volatility is the confidence-weighted standard deviation of headline
// scores, in [0, 1]. Fewer than two headlines carry no dispersion and
// yield ok=false.
func Volatility(items []models.NewsItem) (vol float64, ok bool) {
	scores := ScoreItems(items)
	if len(scores) < 2 {
		return 0, false
	}
	xs := make([]float64, len(scores))
	ws := make([]float64, len(scores))
	for i, s := range scores {
		xs[i] = s.Score
		ws[i] = s.Confidence
	}
	std, ok := weightedStdDev(xs, ws)
	if !ok {
		return 0, false
	}
	return math.Min(std, 1), true
}

// weightedStdDev treats ws as reliability weights: the variance is
// Σw(x-m)²/Σw, not the frequency-weighted Σw-1 form.
func weightedStdDev(xs, ws []float64) (float64, bool) {
	if floats.Sum(ws) <= 0 {
		return 0, false
	}
	_, variance := stat.PopMeanVariance(xs, ws)
	if math.IsNaN(variance) {
		return 0, false
	}
	return math.Sqrt(math.Max(variance, 0)), true
}

// Label summarizes a time-weighted mean score.
func Label(items []models.NewsItem, now time.Time) (string, float64) {
	scores := ScoreItems(items)
	if len(scores) == 0 {
		return "Neutral", 0
	}

	weightedSum, totalWeight := 0.0, 0.0
	for _, s := range scores {
		// Halve weight every 24 hours.
		age := now.Sub(s.PublishedAt).Hours()
		if age < 0 {
			age = 0
		}
		w := math.Exp(-math.Ln2*age/24) * s.Confidence
		weightedSum += s.Score * w
		totalWeight += w
	}
	avg := 0.0
	if totalWeight > 0 {
		avg = weightedSum / totalWeight
	}

	switch {
	case avg > 0.3:
		return "Bullish", avg
	case avg > 0.1:
		return "Slightly Bullish", avg
	case avg < -0.3:
		return "Bearish", avg
	case avg < -0.1:
		return "Slightly Bearish", avg
	}
	return "Neutral", avg
}
