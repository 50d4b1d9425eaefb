/*
scheduler_test.go - Tests for the second-Monday report trigger
*/
package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsReportDay(t *testing.T) {
	// GIVEN: known calendar dates
	// WHEN: checking the second-Monday predicate
	// THEN: only the second Monday of each month qualifies

	cases := []struct {
		date string
		want bool
	}{
		{"2025-03-03", false}, // first Monday
		{"2025-03-10", true},  // second Monday
		{"2025-03-17", false}, // third Monday
		{"2025-03-11", false}, // Tuesday in the second week
		{"2025-09-08", true},  // earliest possible second Monday
		{"2025-02-10", true},
		{"2026-01-12", true},
		{"2025-12-08", true},
		{"2025-12-14", false}, // Sunday ending the window
	}

	for _, tc := range cases {
		day, err := time.Parse("2006-01-02", tc.date)
		assert.NoError(t, err)
		assert.Equal(t, tc.want, IsReportDay(day), tc.date)
	}
}

func TestPreviousMonth(t *testing.T) {
	year, month := PreviousMonth(time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, 2025, year)
	assert.Equal(t, 2, month)

	// January rolls back into the previous year.
	year, month = PreviousMonth(time.Date(2025, time.January, 13, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, 2024, year)
	assert.Equal(t, 12, month)
}

func TestReportScheduler_StartStop(t *testing.T) {
	rs := NewReportScheduler(nil, nil, time.UTC)
	rs.Enabled = false

	// A disabled scheduler must not spin up its goroutine; Stop on a never
	// started scheduler is a no-op.
	rs.Start()
	rs.Stop()
}
