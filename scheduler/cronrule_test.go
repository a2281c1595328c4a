package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satwatch/satwatch-service/types"
)

func at(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func TestParseCron_Valid(t *testing.T) {
	for _, expr := range []string{
		"* * * * *",
		"*/30 * * * *",
		"0 0 */6 * *",
		"15 8 * * 1",
		"0,30 9-17 * * 1-5",
		"*/15 * * * *",
	} {
		rule, err := ParseCron(expr)
		require.NoError(t, err, expr)
		assert.Equal(t, expr, rule.String())
	}
}

func TestParseCron_Invalid(t *testing.T) {
	for _, expr := range []string{
		"",
		"* * * *",
		"* * * * * *",
		"*/0 * * * *",
		"*/x * * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * * 13 *",
		"* * * * 7",
		"5-1 * * * *",
		"a * * * *",
		"1,,2 * * * *",
	} {
		_, err := ParseCron(expr)
		require.Error(t, err, expr)
		assert.True(t, types.IsError(err, types.ErrCronExpressionInvalid), expr)
	}
}

func TestCronRule_Matches(t *testing.T) {
	tests := []struct {
		expr string
		at   time.Time
		want bool
	}{
		{"* * * * *", at(2026, time.March, 10, 14, 37), true},
		{"*/30 * * * *", at(2026, time.March, 10, 14, 0), true},
		{"*/30 * * * *", at(2026, time.March, 10, 14, 30), true},
		{"*/30 * * * *", at(2026, time.March, 10, 14, 15), false},
		{"0 0 */6 * *", at(2026, time.March, 1, 0, 0), true},
		{"0 0 */6 * *", at(2026, time.March, 7, 0, 0), true},
		{"0 0 */6 * *", at(2026, time.March, 7, 6, 0), false},
		{"0 0 */6 * *", at(2026, time.March, 2, 0, 0), false},
		// 2026-03-09 is a Monday.
		{"15 8 * * 1", at(2026, time.March, 9, 8, 15), true},
		{"15 8 * * 1", at(2026, time.March, 10, 8, 15), false},
		{"0,30 9-17 * * 1-5", at(2026, time.March, 9, 9, 30), true},
		{"0,30 9-17 * * 1-5", at(2026, time.March, 9, 18, 0), false},
		{"0,30 9-17 * * 1-5", at(2026, time.March, 8, 9, 30), false},
		{"0 12 25 12 *", at(2026, time.December, 25, 12, 0), true},
		{"0 12 25 12 *", at(2026, time.November, 25, 12, 0), false},
	}

	for _, tt := range tests {
		rule, err := ParseCron(tt.expr)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, rule.Matches(tt.at), "%s at %s", tt.expr, tt.at)
	}
}

func TestCronRule_MatchesIgnoresSeconds(t *testing.T) {
	rule, err := ParseCron("*/30 * * * *")
	require.NoError(t, err)

	due := at(2026, time.March, 10, 14, 30)
	for sec := 0; sec < 60; sec++ {
		assert.True(t, rule.Matches(due.Add(time.Duration(sec)*time.Second)))
	}
}

func TestCronRule_MinInterval(t *testing.T) {
	tests := []struct {
		expr string
		want time.Duration
	}{
		{"* * * * *", time.Minute},
		{"*/15 * * * *", 15 * time.Minute},
		{"*/30 * * * *", 30 * time.Minute},
		{"0 * * * *", time.Hour},
		{"0 */2 * * *", 2 * time.Hour},
		{"0 0 */6 * *", 6 * time.Hour},
		{"0 12 * * *", 24 * time.Hour},
		{"30 6 1 * *", 24 * time.Hour},
	}

	for _, tt := range tests {
		rule, err := ParseCron(tt.expr)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, rule.MinInterval(), tt.expr)
	}
}

func TestCronRule_Next(t *testing.T) {
	rule, err := ParseCron("*/30 * * * *")
	require.NoError(t, err)

	from := at(2026, time.March, 10, 14, 10)
	assert.Equal(t, at(2026, time.March, 10, 14, 30), rule.Next(from))

	// Strictly after: a due instant yields the following slot.
	assert.Equal(t, at(2026, time.March, 10, 15, 0), rule.Next(at(2026, time.March, 10, 14, 30)))

	daily, err := ParseCron("0 0 */6 * *")
	require.NoError(t, err)
	assert.Equal(t, at(2026, time.March, 7, 0, 0), daily.Next(at(2026, time.March, 1, 0, 0)))
}
