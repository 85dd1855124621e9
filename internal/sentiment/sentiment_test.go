package sentiment

import "testing"

func TestScoreText_Polarity(t *testing.T) {
	pos := ScoreText("Shares soar after excellent earnings and strong growth")
	if pos.Compound <= 0 {
		t.Errorf("expected positive compound, got %f", pos.Compound)
	}

	neg := ScoreText("Terrible losses as the company faces a disastrous crash")
	if neg.Compound >= 0 {
		t.Errorf("expected negative compound, got %f", neg.Compound)
	}

	if pos.Compound <= neg.Compound {
		t.Error("positive text must score above negative text")
	}
}

func TestScoreHeadlines_Labels(t *testing.T) {
	sum := ScoreHeadlines([]string{
		"Great quarter with record profit",
		"Analysts praise the excellent outlook",
	})
	if sum.Label != "positive" {
		t.Errorf("expected positive label, got %s (compound %f)", sum.Label, sum.Compound)
	}
	if len(sum.Scores) != 2 {
		t.Errorf("expected 2 per-headline scores, got %d", len(sum.Scores))
	}

	sum = ScoreHeadlines([]string{
		"Awful results, terrible guidance, stock plunges",
	})
	if sum.Label != "negative" {
		t.Errorf("expected negative label, got %s (compound %f)", sum.Label, sum.Compound)
	}
}

func TestScoreHeadlines_Empty(t *testing.T) {
	sum := ScoreHeadlines(nil)
	if sum.Label != "neutral" {
		t.Errorf("expected neutral for empty input, got %s", sum.Label)
	}
	if sum.Compound != 0 {
		t.Errorf("expected zero compound, got %f", sum.Compound)
	}
	if len(sum.Scores) != 0 {
		t.Errorf("expected no scores, got %d", len(sum.Scores))
	}
}
