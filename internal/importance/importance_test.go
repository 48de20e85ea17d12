package importance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLabelFromScoreThresholds(t *testing.T) {
	assert.Equal(t, MustRemember, LabelFromScore(0.80))
	assert.Equal(t, MustRemember, LabelFromScore(1.0))
	assert.Equal(t, NiceToHave, LabelFromScore(0.50))
	assert.Equal(t, NiceToHave, LabelFromScore(0.79))
	assert.Equal(t, Ignore, LabelFromScore(0.0))
	assert.Equal(t, Ignore, LabelFromScore(0.49))
}

func TestParseLabelAliases(t *testing.T) {
	assert.Equal(t, MustRemember, ParseLabel("must remember"))
	assert.Equal(t, MustRemember, ParseLabel("Must-Remember"))
	assert.Equal(t, MustRemember, ParseLabel("high"))
	assert.Equal(t, NiceToHave, ParseLabel("nice to have"))
	assert.Equal(t, NiceToHave, ParseLabel("medium"))
	assert.Equal(t, Ignore, ParseLabel("low"))
	assert.Equal(t, Unknown, ParseLabel("bogus"))
	assert.Equal(t, Unknown, ParseLabel(""))
}

func TestParseScoreTolerant(t *testing.T) {
	assert.Equal(t, 0.0, ParseScore(nil))
	assert.Equal(t, 0.0, ParseScore(true))
	assert.Equal(t, 0.0, ParseScore(false))
	assert.Equal(t, 1.0, ParseScore(5.0))
	assert.Equal(t, 0.0, ParseScore(-1.0))
	assert.Equal(t, 0.5, ParseScore("0.5"))
	assert.Equal(t, 0.0, ParseScore("not-a-number"))
}

func TestParseLegacyShapes(t *testing.T) {
	r := Parse(0.9)
	assert.Equal(t, MustRemember, r.Label)

	r = Parse("nice_to_have")
	assert.Equal(t, NiceToHave, r.Label)

	r = Parse(map[string]any{"score": 0.85})
	assert.Equal(t, MustRemember, r.Label)

	r = Parse(map[string]any{"label": "ignore"})
	assert.Equal(t, Ignore, r.Label)

	r = Parse(nil)
	assert.Equal(t, Unknown, r.Label)
	assert.Equal(t, 0.0, r.Score)
}

func TestHasTaskMarkerBasic(t *testing.T) {
	cases := map[string]bool{
		"TODO: buy milk":            true,
		"TODO buy milk":             true,
		"- TODO: buy milk":          true,
		"> - [ ] TODO: buy milk":    true,
		"1. TODO: buy milk":         true,
		"(a) TASK: clean up":        true,
		"(iv) REMINDER: call mom":   true,
		"[TODO] fix the bug":        true,
		"TODOIST reminder app":      false,
		"just a TODO mention mid":   false,
		"REMINDER-ish but not real": true,
	}
	for in, want := range cases {
		assert.Equal(t, want, HasTaskMarker(in), "input=%q", in)
	}
}

func TestHasTaskMarkerRejectsSubstring(t *testing.T) {
	assert.False(t, HasTaskMarker("This is not a TODO item, just discussing one"))
}

func TestGradeSecretPenalized(t *testing.T) {
	rec, err := Grade(GradeInput{Summary: "here is sk-abcdefgh123456 do not share"})
	assert.NoError(t, err)
	assert.Less(t, rec.Score, 0.30)
	assert.Equal(t, HeuristicV1, rec.Method)
	assert.Equal(t, 1, rec.Version)
}

func TestGradeDurablePreferenceBoost(t *testing.T) {
	rec, err := Grade(GradeInput{Summary: "I always prefer tabs over spaces, this is a rule"})
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, rec.Score, 0.70)
	assert.Equal(t, NiceToHave, rec.Label)
}

func TestGradeChitChatPenalized(t *testing.T) {
	rec, err := Grade(GradeInput{Summary: "thanks"})
	assert.NoError(t, err)
	assert.Less(t, rec.Score, 0.30)
}

func TestGradeTaskMarkerBoost(t *testing.T) {
	rec, err := Grade(GradeInput{Kind: "task", Summary: "TODO: ship the release by 2026-08-01"})
	assert.NoError(t, err)
	assert.Greater(t, rec.Score, 0.30)
}

func TestGradeStampsGradedAtFromClock(t *testing.T) {
	fixed := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	rec, err := Grade(GradeInput{
		Summary: "hello",
		Clock:   func() time.Time { return fixed },
	})
	assert.NoError(t, err)
	assert.True(t, rec.GradedAt.Equal(fixed))
}

func TestGradeDefaultsClockToNow(t *testing.T) {
	before := time.Now().UTC()
	rec, err := Grade(GradeInput{Summary: "hello"})
	assert.NoError(t, err)
	assert.False(t, rec.GradedAt.Before(before.Truncate(time.Second)))
}

func TestGradeFoldsToolNameIntoScoredText(t *testing.T) {
	withTool, err := Grade(GradeInput{ToolName: "cron.nightly", Summary: "job executed successfully"})
	assert.NoError(t, err)

	withoutTool, err := Grade(GradeInput{Summary: "job executed successfully"})
	assert.NoError(t, err)

	assert.Greater(t, withTool.Score, withoutTool.Score)
}
