// Package sentiment scores market headlines with a keyword dictionary. It runs
// offline and gives the market theme a tone even when no model key is set.
package sentiment

import (
	"math"
	"strings"
	"time"

	"github.com/seenimoa/chartscout/pkg/models"
)

// Mood labels.
const (
	LabelBullish         = "Bullish"
	LabelSlightlyBullish = "Slightly Bullish"
	LabelNeutral         = "Neutral"
	LabelSlightlyBearish = "Slightly Bearish"
	LabelBearish         = "Bearish"
)

// Keyword weights. Korean terms are matched as substrings, so stems are used
// ("상승" also hits "상승세", "상승폭").
var bullishWords = map[string]float64{
	"급등": 0.8, "상승": 0.5, "강세": 0.6, "반등": 0.5, "신고가": 0.7,
	"최고치": 0.7, "호조": 0.5, "호실적": 0.6, "순매수": 0.5, "돌파": 0.5,
	"기대감": 0.3, "수혜": 0.4, "상향": 0.5, "훈풍": 0.5,
	"rally": 0.6, "surge": 0.7, "record high": 0.7, "upgrade": 0.6,
	"bullish": 0.7, "beat": 0.5, "rebound": 0.5,
}

var bearishWords = map[string]float64{
	"급락": 0.8, "하락": 0.5, "약세": 0.6, "폭락": 0.9, "신저가": 0.7,
	"부진": 0.5, "순매도": 0.5, "우려": 0.4, "하향": 0.5, "적자": 0.5,
	"불확실성": 0.4, "쇼크": 0.6, "경고": 0.5, "악재": 0.6,
	"plunge": 0.7, "crash": 0.8, "selloff": 0.7, "downgrade": 0.6,
	"bearish": 0.7, "slump": 0.6, "recession": 0.6,
}

// ScoreHeadline returns a score from -1.0 (very bearish) to +1.0 (very
// bullish) and a confidence that grows with the number of keyword hits.
func ScoreHeadline(headline string) (score float64, confidence float64) {
	lower := strings.ToLower(headline)

	bullScore, bearScore := 0.0, 0.0
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

// Aggregate computes a time-weighted mood over articles. Weight halves every
// 24 hours of age and scales with each headline's confidence.
func Aggregate(articles []models.NewsArticle, now time.Time) models.MarketMood {
	if len(articles) == 0 {
		return models.MarketMood{Label: LabelNeutral}
	}

	weightedSum, totalWeight := 0.0, 0.0
	for _, a := range articles {
		text := a.Title
		if a.Summary != "" {
			text += " " + a.Summary
		}
		score, conf := ScoreHeadline(text)

		age := 0.0
		if !a.PublishedAt.IsZero() {
			age = math.Max(now.Sub(a.PublishedAt).Hours(), 0)
		}
		w := math.Exp(-math.Ln2*age/24) * conf
		weightedSum += score * w
		totalWeight += w
	}

	avg := 0.0
	if totalWeight > 0 {
		avg = weightedSum / totalWeight
	}
	return models.MarketMood{
		Score:    avg,
		Label:    Label(avg),
		Articles: len(articles),
	}
}

// Label maps an aggregate score to its mood label.
func Label(score float64) string {
	switch {
	case score > 0.3:
		return LabelBullish
	case score > 0.1:
		return LabelSlightlyBullish
	case score < -0.3:
		return LabelBearish
	case score < -0.1:
		return LabelSlightlyBearish
	}
	return LabelNeutral
}
