// Package sentiment scores news headlines with the VADER polarity model.
// Scores are presentation data only; nothing in the ledger keys off them.
package sentiment

import (
	"github.com/grassmudhorses/vader-go/lexicon"
	"github.com/grassmudhorses/vader-go/sentitext"
)

// Score is the VADER polarity result for one piece of text.
// Compound is in [-1, 1]: negative below ~-0.05, positive above ~0.05.
type Score struct {
	Text     string  `json:"text"`
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
	Compound float64 `json:"compound"`
}

// Summary aggregates scores over a batch of headlines.
type Summary struct {
	Scores   []Score `json:"scores"`
	Compound float64 `json:"compound"` // mean compound across headlines
	Label    string  `json:"label"`    // "positive", "negative" or "neutral"
}

// ScoreText scores a single text.
func ScoreText(text string) Score {
	parsed := sentitext.Parse(text, lexicon.DefaultLexicon)
	p := sentitext.PolarityScore(parsed)
	return Score{
		Text:     text,
		Positive: p.Positive,
		Negative: p.Negative,
		Neutral:  p.Neutral,
		Compound: p.Compound,
	}
}

// ScoreHeadlines scores each headline and summarizes the batch.
func ScoreHeadlines(headlines []string) Summary {
	sum := Summary{Scores: make([]Score, 0, len(headlines))}
	if len(headlines) == 0 {
		sum.Label = "neutral"
		return sum
	}

	var total float64
	for _, h := range headlines {
		s := ScoreText(h)
		sum.Scores = append(sum.Scores, s)
		total += s.Compound
	}
	sum.Compound = total / float64(len(headlines))

	switch {
	case sum.Compound >= 0.05:
		sum.Label = "positive"
	case sum.Compound <= -0.05:
		sum.Label = "negative"
	default:
		sum.Label = "neutral"
	}
	return sum
}
