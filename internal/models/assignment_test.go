package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignmentLatePenaltyFor(t *testing.T) {
	due := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)

	tests := []struct {
		name      string
		allowLate bool
		rate      float64
		submitted time.Time
		want      float64
	}{
		{name: "on time", allowLate: true, rate: 10, submitted: due, want: 0},
		{name: "late work disallowed", allowLate: false, rate: 10, submitted: due.Add(48 * time.Hour), want: 0},
		{name: "started day counts", allowLate: true, rate: 10, submitted: due.Add(time.Minute), want: 10},
		{name: "three days", allowLate: true, rate: 10, submitted: due.Add(50 * time.Hour), want: 30},
		{name: "capped at 100", allowLate: true, rate: 30, submitted: due.Add(4 * 24 * time.Hour), want: 100},
		{name: "rate above 100", allowLate: true, rate: 150, submitted: due.Add(time.Hour), want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Assignment{DueDate: due, AllowLateSubmission: tt.allowLate, LatePenalty: tt.rate}
			assert.Equal(t, tt.want, a.LatePenaltyFor(tt.submitted))
		})
	}
}

func TestSubmissionFinalPointsNeverNegative(t *testing.T) {
	s := &Submission{IsLate: true, LatePenalty: 100}
	s.ApplyScore(8, 10)
	assert.Equal(t, 0.0, *s.FinalPoints)
	assert.Equal(t, 80.0, *s.Percentage)
	assert.Equal(t, 0.0, *s.FinalPercentage)

	s.PenaltyWaived = true
	s.ApplyScore(8, 10)
	assert.Equal(t, 8.0, *s.FinalPoints)
}

func TestBulkResultNamesCountAfterAction(t *testing.T) {
	body, err := json.Marshal(&BulkResult{Action: BulkDeleted, Succeeded: 2, TotalRequested: 3,
		Failed: []BulkFailure{{ID: "a-3", Reason: "assignment has submissions"}}})
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.EqualValues(t, 2, out["deleted"])
	assert.EqualValues(t, 3, out["total_requested"])
	assert.Len(t, out["failed"], 1)
	assert.NotContains(t, out, "succeeded")
}

func TestSubmissionForStudentHidesUnreleasedMarks(t *testing.T) {
	correct, earned, note := true, 2.0, "watch the sign"
	s := &Submission{PrivateNotes: &note, QuizAnswers: QuizAnswers{{QuestionIndex: 0, IsCorrect: &correct, PointsEarned: &earned}}}

	hidden := s.ForStudent(false)
	assert.Nil(t, hidden.PrivateNotes)
	assert.Nil(t, hidden.QuizAnswers[0].IsCorrect)
	assert.Nil(t, hidden.QuizAnswers[0].PointsEarned)
	require.NotNil(t, s.QuizAnswers[0].IsCorrect)

	shown := s.ForStudent(true)
	assert.Nil(t, shown.PrivateNotes)
	require.NotNil(t, shown.QuizAnswers[0].IsCorrect)
	assert.Equal(t, 2.0, *shown.QuizAnswers[0].PointsEarned)
}
