package models

import (
	"database/sql/driver"
	"math"
	"time"

	"github.com/lib/pq"
)

// SubmissionStatus tracks a hand-in through grading.
type SubmissionStatus string

const (
	SubmissionSubmitted            SubmissionStatus = "submitted"
	SubmissionGrading              SubmissionStatus = "grading"
	SubmissionGraded               SubmissionStatus = "graded"
	SubmissionReturned             SubmissionStatus = "returned"
	SubmissionResubmissionRequired SubmissionStatus = "resubmission_required"
)

// Attachment is file metadata only; uploads are handled elsewhere.
type Attachment struct {
	Name     string `json:"name" validate:"required,max=255"`
	URL      string `json:"url" validate:"required,url"`
	Size     int64  `json:"size,omitempty" validate:"gte=0"`
	MimeType string `json:"mime_type,omitempty" validate:"max=100"`
}

// Attachments is persisted as JSONB.
type Attachments []Attachment

// Value implements driver.Valuer.
func (a Attachments) Value() (driver.Value, error) {
	if a == nil {
		a = Attachments{}
	}
	return jsonValue([]Attachment(a))
}

// Scan implements sql.Scanner.
func (a *Attachments) Scan(value interface{}) error {
	return jsonScan(value, (*[]Attachment)(a))
}

// QuizAnswer is the graded answer to one question. IsCorrect is nil while
// the answer awaits manual grading.
type QuizAnswer struct {
	QuestionID          string   `json:"question_id"`
	QuestionIndex       int      `json:"question_index"`
	SelectedOptionIndex *int     `json:"selected_option_index,omitempty"`
	Answer              string   `json:"answer,omitempty"`
	IsCorrect           *bool    `json:"is_correct,omitempty"`
	PointsEarned        *float64 `json:"points_earned,omitempty"`
}

// QuizAnswers is persisted as JSONB.
type QuizAnswers []QuizAnswer

// Value implements driver.Valuer.
func (q QuizAnswers) Value() (driver.Value, error) {
	if q == nil {
		q = QuizAnswers{}
	}
	return jsonValue([]QuizAnswer(q))
}

// Scan implements sql.Scanner.
func (q *QuizAnswers) Scan(value interface{}) error {
	return jsonScan(value, (*[]QuizAnswer)(q))
}

// RubricGrade scores one rubric criterion.
type RubricGrade struct {
	Criteria     string  `json:"criteria" validate:"required,max=200"`
	PointsEarned float64 `json:"points_earned" validate:"gte=0"`
	Comment      string  `json:"comment,omitempty" validate:"max=1000"`
}

// RubricGrades is persisted as JSONB.
type RubricGrades []RubricGrade

// Value implements driver.Valuer.
func (r RubricGrades) Value() (driver.Value, error) {
	if r == nil {
		r = RubricGrades{}
	}
	return jsonValue([]RubricGrade(r))
}

// Scan implements sql.Scanner.
func (r *RubricGrades) Scan(value interface{}) error {
	return jsonScan(value, (*[]RubricGrade)(r))
}

// GradeHistoryEntry snapshots a grade before it was replaced.
type GradeHistoryEntry struct {
	PointsEarned float64   `json:"points_earned"`
	Percentage   float64   `json:"percentage"`
	LetterGrade  string    `json:"letter_grade,omitempty"`
	Feedback     string    `json:"feedback,omitempty"`
	GradedBy     string    `json:"graded_by,omitempty"`
	GradedAt     time.Time `json:"graded_at"`
	Version      int       `json:"version"`
}

// GradeHistory is persisted as JSONB.
type GradeHistory []GradeHistoryEntry

// Value implements driver.Valuer.
func (g GradeHistory) Value() (driver.Value, error) {
	if g == nil {
		g = GradeHistory{}
	}
	return jsonValue([]GradeHistoryEntry(g))
}

// Scan implements sql.Scanner.
func (g *GradeHistory) Scan(value interface{}) error {
	return jsonScan(value, (*[]GradeHistoryEntry)(g))
}

// Submission is a student's work on an assignment. There is at most one per
// (assignment, student); resubmissions bump AttemptNumber.
type Submission struct {
	ID                string           `db:"id" json:"id"`
	AssignmentID      string           `db:"assignment_id" json:"assignment_id"`
	StudentID         string           `db:"student_id" json:"student_id"`
	CourseID          string           `db:"course_id" json:"course_id"`
	SubmissionType    SubmissionType   `db:"submission_type" json:"submission_type"`
	TextContent       string           `db:"text_content" json:"text_content,omitempty"`
	Links             pq.StringArray   `db:"links" json:"links"`
	Attachments       Attachments      `db:"attachments" json:"attachments"`
	QuizAnswers       QuizAnswers      `db:"quiz_answers" json:"quiz_answers,omitempty"`
	SubmittedAt       time.Time        `db:"submitted_at" json:"submitted_at"`
	StartedAt         *time.Time       `db:"started_at" json:"started_at,omitempty"`
	TimeSpent         int              `db:"time_spent" json:"time_spent"`
	TimeLimitExceeded bool             `db:"time_limit_exceeded" json:"time_limit_exceeded"`
	IsLate            bool             `db:"is_late" json:"is_late"`
	LatePenalty       float64          `db:"late_penalty" json:"late_penalty"`
	PenaltyWaived     bool             `db:"penalty_waived" json:"penalty_waived"`
	AttemptNumber     int              `db:"attempt_number" json:"attempt_number"`
	Status            SubmissionStatus `db:"status" json:"status"`
	PointsEarned      *float64         `db:"points_earned" json:"points_earned,omitempty"`
	Percentage        *float64         `db:"percentage" json:"percentage,omitempty"`
	FinalPoints       *float64         `db:"final_points" json:"final_points,omitempty"`
	FinalPercentage   *float64         `db:"final_percentage" json:"final_percentage,omitempty"`
	LetterGrade       *string          `db:"letter_grade" json:"letter_grade,omitempty"`
	Feedback          *string          `db:"feedback" json:"feedback,omitempty"`
	PrivateNotes      *string          `db:"private_notes" json:"private_notes,omitempty"`
	RubricGrades      RubricGrades     `db:"rubric_grades" json:"rubric_grades,omitempty"`
	GradedBy          *string          `db:"graded_by" json:"graded_by,omitempty"`
	GradedAt          *time.Time       `db:"graded_at" json:"graded_at,omitempty"`
	GradeHistory      GradeHistory     `db:"grade_history" json:"grade_history,omitempty"`
	Version           int              `db:"version" json:"version"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`

	StudentName     string `db:"student_name" json:"student_name,omitempty"`
	AssignmentTitle string `db:"assignment_title" json:"assignment_title,omitempty"`
}

// IsGraded reports whether points have been assigned.
func (s *Submission) IsGraded() bool {
	return s.PointsEarned != nil && (s.Status == SubmissionGraded || s.Status == SubmissionReturned)
}

// PenaltyApplies reports whether the late penalty reduces the grade.
func (s *Submission) PenaltyApplies() bool {
	return s.IsLate && !s.PenaltyWaived && s.LatePenalty > 0
}

// ComputeFinalPoints applies the late penalty to points, never going below zero.
func (s *Submission) ComputeFinalPoints(points float64) float64 {
	if !s.PenaltyApplies() {
		return points
	}
	return math.Max(0, points*(1-s.LatePenalty/100))
}

// ApplyScore sets the raw and penalised points and percentages for maxPoints.
func (s *Submission) ApplyScore(points, maxPoints float64) {
	final := s.ComputeFinalPoints(points)
	pct := Percent(points, maxPoints)
	finalPct := Percent(final, maxPoints)
	letter := LetterGrade(finalPct)
	s.PointsEarned = &points
	s.Percentage = &pct
	s.FinalPoints = &final
	s.FinalPercentage = &finalPct
	s.LetterGrade = &letter
}

// ForStudent hides teacher-only fields. Per-answer marks stay hidden until
// answersReleased.
func (s *Submission) ForStudent(answersReleased bool) *Submission {
	clone := *s
	clone.PrivateNotes = nil
	if !answersReleased && len(s.QuizAnswers) > 0 {
		clone.QuizAnswers = make(QuizAnswers, len(s.QuizAnswers))
		for i, ans := range s.QuizAnswers {
			ans.IsCorrect, ans.PointsEarned = nil, nil
			clone.QuizAnswers[i] = ans
		}
	}
	return &clone
}

// Percent returns part/whole as a whole-number percentage.
func Percent(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return math.Round(part / whole * 100)
}

// SubmissionFilter narrows submission listings.
type SubmissionFilter struct {
	AssignmentID string
	StudentID    string
	CourseID     string
	TeacherID    string
	Status       SubmissionStatus
	Page         int
	PageSize     int
}

// SubmitRequest is the payload for non-quiz submissions.
type SubmitRequest struct {
	SubmissionType SubmissionType `json:"submission_type" validate:"omitempty,oneof=file text link multiple"`
	TextContent    string         `json:"text_content" validate:"max=10000"`
	Links          []string       `json:"links" validate:"omitempty,max=20,dive,url"`
	Attachments    []Attachment   `json:"attachments" validate:"omitempty,max=20,dive"`
}

// QuizAnswerInput is one answer in a quiz submission.
type QuizAnswerInput struct {
	QuestionIndex       int    `json:"question_index" validate:"gte=0"`
	SelectedOptionIndex *int   `json:"selected_option_index" validate:"omitempty,gte=0"`
	Answer              string `json:"answer" validate:"max=10000"`
}

// QuizSubmitRequest is the payload for quiz submissions.
type QuizSubmitRequest struct {
	Answers   []QuizAnswerInput `json:"answers" validate:"required,dive"`
	StartTime *time.Time        `json:"start_time"`
	EndTime   *time.Time        `json:"end_time"`
}

// QuizQuestionView is a question as shown to a student taking the quiz.
type QuizQuestionView struct {
	Index    int          `json:"index"`
	ID       string       `json:"id"`
	Type     QuestionType `json:"type"`
	Question string       `json:"question"`
	Options  []string     `json:"options,omitempty"`
	Points   float64      `json:"points"`
}

// QuizView is the quiz as delivered to a student.
type QuizView struct {
	AssignmentID     string             `json:"assignment_id"`
	Title            string             `json:"title"`
	Instructions     string             `json:"instructions,omitempty"`
	DueDate          time.Time          `json:"due_date"`
	MaxPoints        float64            `json:"max_points"`
	TimeLimit        int                `json:"time_limit"`
	QuestionsPerPage int                `json:"questions_per_page"`
	AllowBacktrack   bool               `json:"allow_backtrack"`
	MaxAttempts      int                `json:"max_attempts"`
	AttemptsUsed     int                `json:"attempts_used"`
	Questions        []QuizQuestionView `json:"questions"`
}

// QuizQuestionResult is a graded question in a quiz result.
type QuizQuestionResult struct {
	QuestionIndex       int          `json:"question_index"`
	QuestionID          string       `json:"question_id"`
	Question            string       `json:"question"`
	Type                QuestionType `json:"type"`
	Options             []string     `json:"options,omitempty"`
	Points              float64      `json:"points"`
	SelectedOptionIndex *int         `json:"selected_option_index,omitempty"`
	Answer              string       `json:"answer,omitempty"`
	IsCorrect           *bool        `json:"is_correct,omitempty"`
	PointsEarned        *float64     `json:"points_earned,omitempty"`
	CorrectAnswerIndex  *int         `json:"correct_answer_index,omitempty"`
	CorrectAnswer       string       `json:"correct_answer,omitempty"`
	Explanation         string       `json:"explanation,omitempty"`
}

// QuizResult is the outcome of a quiz attempt.
type QuizResult struct {
	SubmissionID      string               `json:"submission_id"`
	AssignmentID      string               `json:"assignment_id"`
	Status            SubmissionStatus     `json:"status"`
	TotalPoints       float64              `json:"total_points"`
	MaxPoints         float64              `json:"max_points"`
	Percentage        float64              `json:"percentage"`
	FinalPoints       float64              `json:"final_points"`
	FinalPercentage   float64              `json:"final_percentage"`
	IsLate            bool                 `json:"is_late"`
	LatePenalty       float64              `json:"late_penalty"`
	TimeSpent         int                  `json:"time_spent"`
	TimeLimitExceeded bool                 `json:"time_limit_exceeded"`
	NeedsManualGrade  bool                 `json:"needs_manual_grade"`
	AnswersRevealed   bool                 `json:"answers_revealed"`
	Questions         []QuizQuestionResult `json:"questions"`
}

// SubmissionList bundles an assignment's submissions with their stats.
type SubmissionList struct {
	Submissions []Submission    `json:"submissions"`
	Stats       SubmissionStats `json:"stats"`
}
