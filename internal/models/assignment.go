package models

import (
	"database/sql/driver"
	"encoding/json"
	"math"
	"time"

	"github.com/lib/pq"
)

// AssignmentType enumerates gradable work kinds.
type AssignmentType string

const (
	AssignmentHomework     AssignmentType = "homework"
	AssignmentQuiz         AssignmentType = "quiz"
	AssignmentMidterm      AssignmentType = "midterm"
	AssignmentFinal        AssignmentType = "final"
	AssignmentProject      AssignmentType = "project"
	AssignmentPresentation AssignmentType = "presentation"
	AssignmentLab          AssignmentType = "lab"
	AssignmentEssay        AssignmentType = "essay"
	AssignmentOther        AssignmentType = "other"
)

// AssignmentStatus is the lifecycle state of an assignment.
type AssignmentStatus string

const (
	AssignmentDraft     AssignmentStatus = "draft"
	AssignmentPublished AssignmentStatus = "published"
	AssignmentClosed    AssignmentStatus = "closed"
	AssignmentGraded    AssignmentStatus = "graded"
)

// SubmissionType describes what students hand in.
type SubmissionType string

const (
	SubmissionTypeFile     SubmissionType = "file"
	SubmissionTypeText     SubmissionType = "text"
	SubmissionTypeLink     SubmissionType = "link"
	SubmissionTypeQuiz     SubmissionType = "quiz"
	SubmissionTypeMultiple SubmissionType = "multiple"
)

// QuestionType enumerates quiz question kinds.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionShortAnswer    QuestionType = "short_answer"
	QuestionEssay          QuestionType = "essay"
	QuestionFillBlank      QuestionType = "fill_blank"
)

// Windows reported by Assignment.SubmissionWindow.
const (
	WindowDraft          = "draft"
	WindowClosed         = "closed"
	WindowOpen           = "open"
	WindowLateSubmission = "late_submission"
	WindowOverdue        = "overdue"
)

// Question is a single quiz item. CorrectAnswerIndex applies to choice
// questions, CorrectAnswer to text questions.
type Question struct {
	ID                 string       `json:"id"`
	Type               QuestionType `json:"type" validate:"required,oneof=multiple_choice true_false short_answer essay fill_blank"`
	Question           string       `json:"question" validate:"required,max=2000"`
	Options            []string     `json:"options,omitempty" validate:"omitempty,max=10,dive,required,max=500"`
	CorrectAnswerIndex *int         `json:"correct_answer_index,omitempty"`
	CorrectAnswer      string       `json:"correct_answer,omitempty" validate:"max=500"`
	Points             float64      `json:"points" validate:"gte=0,lte=1000"`
	Explanation        string       `json:"explanation,omitempty" validate:"max=2000"`
}

// IsChoice reports whether the question is graded by option index.
func (q Question) IsChoice() bool {
	return q.Type == QuestionMultipleChoice || q.Type == QuestionTrueFalse
}

// AutoGradable reports whether the question can be scored without a teacher.
func (q Question) AutoGradable() bool {
	if q.IsChoice() {
		return q.CorrectAnswerIndex != nil
	}
	return (q.Type == QuestionFillBlank || q.Type == QuestionShortAnswer) && q.CorrectAnswer != ""
}

// Questions is persisted as JSONB.
type Questions []Question

// Value implements driver.Valuer.
func (q Questions) Value() (driver.Value, error) {
	if q == nil {
		q = Questions{}
	}
	return jsonValue([]Question(q))
}

// Scan implements sql.Scanner.
func (q *Questions) Scan(value interface{}) error {
	return jsonScan(value, (*[]Question)(q))
}

// RubricLevel is one scoring band of a rubric criterion.
type RubricLevel struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description string  `json:"description,omitempty" validate:"max=500"`
	Points      float64 `json:"points" validate:"gte=0"`
}

// RubricCriterion is one line of a grading rubric.
type RubricCriterion struct {
	Criteria    string        `json:"criteria" validate:"required,max=200"`
	Description string        `json:"description,omitempty" validate:"max=1000"`
	Points      float64       `json:"points" validate:"gte=0"`
	Levels      []RubricLevel `json:"levels,omitempty" validate:"dive"`
}

// Rubric is persisted as JSONB.
type Rubric []RubricCriterion

// Value implements driver.Valuer.
func (r Rubric) Value() (driver.Value, error) {
	if r == nil {
		r = Rubric{}
	}
	return jsonValue([]RubricCriterion(r))
}

// Scan implements sql.Scanner.
func (r *Rubric) Scan(value interface{}) error {
	return jsonScan(value, (*[]RubricCriterion)(r))
}

// Total sums the criterion points.
func (r Rubric) Total() float64 {
	total := 0.0
	for _, c := range r {
		total += c.Points
	}
	return total
}

// Resource is a link attached to an assignment.
type Resource struct {
	Title string `json:"title" validate:"required,max=200"`
	URL   string `json:"url" validate:"required,url"`
	Type  string `json:"type,omitempty" validate:"omitempty,oneof=link video document"`
}

// Resources is persisted as JSONB.
type Resources []Resource

// Value implements driver.Valuer.
func (r Resources) Value() (driver.Value, error) {
	if r == nil {
		r = Resources{}
	}
	return jsonValue([]Resource(r))
}

// Scan implements sql.Scanner.
func (r *Resources) Scan(value interface{}) error {
	return jsonScan(value, (*[]Resource)(r))
}

// QuizSettings tunes the quiz taking experience.
type QuizSettings struct {
	TimeLimit              int  `json:"time_limit" validate:"gte=0,lte=600"`
	QuestionsPerPage       int  `json:"questions_per_page" validate:"gte=0,lte=100"`
	RandomizeQuestions     bool `json:"randomize_questions"`
	AllowBacktrack         bool `json:"allow_backtrack"`
	ShowResultsImmediately bool `json:"show_results_immediately"`
	MaxAttempts            int  `json:"max_attempts" validate:"gte=0,lte=10"`
}

// Value implements driver.Valuer.
func (s QuizSettings) Value() (driver.Value, error) {
	return jsonValue(s)
}

// Scan implements sql.Scanner.
func (s *QuizSettings) Scan(value interface{}) error {
	return jsonScan(value, s)
}

// Assignment is a gradable task issued to one or more groups.
type Assignment struct {
	ID                     string           `db:"id" json:"id"`
	Code                   string           `db:"code" json:"code"`
	Title                  string           `db:"title" json:"title"`
	Description            string           `db:"description" json:"description"`
	Instructions           string           `db:"instructions" json:"instructions"`
	CourseID               string           `db:"course_id" json:"course_id"`
	TeacherID              string           `db:"teacher_id" json:"teacher_id"`
	GroupIDs               pq.StringArray   `db:"group_ids" json:"group_ids"`
	Type                   AssignmentType   `db:"type" json:"type"`
	Category               string           `db:"category" json:"category"`
	MaxPoints              float64          `db:"max_points" json:"max_points"`
	Weightage              float64          `db:"weightage" json:"weightage"`
	AssignedDate           time.Time        `db:"assigned_date" json:"assigned_date"`
	DueDate                time.Time        `db:"due_date" json:"due_date"`
	LateSubmissionDeadline *time.Time       `db:"late_submission_deadline" json:"late_submission_deadline,omitempty"`
	SubmissionType         SubmissionType   `db:"submission_type" json:"submission_type"`
	AllowLateSubmission    bool             `db:"allow_late_submission" json:"allow_late_submission"`
	LatePenalty            float64          `db:"late_penalty" json:"late_penalty"`
	QuizSettings           QuizSettings     `db:"quiz_settings" json:"quiz_settings"`
	Questions              Questions        `db:"questions" json:"questions"`
	Rubric                 Rubric           `db:"rubric" json:"rubric"`
	Resources              Resources        `db:"resources" json:"resources"`
	Status                 AssignmentStatus `db:"status" json:"status"`
	PublishedAt            *time.Time       `db:"published_at" json:"published_at,omitempty"`
	CreatedAt              time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time        `db:"updated_at" json:"updated_at"`
}

// IsQuiz reports whether submissions are quiz answer sheets.
func (a *Assignment) IsQuiz() bool {
	return a.Type == AssignmentQuiz || a.SubmissionType == SubmissionTypeQuiz
}

// QuizAnswersReleased reports whether students may see which answers were
// correct.
func (a *Assignment) QuizAnswersReleased() bool {
	return a.QuizSettings.ShowResultsImmediately || a.Status == AssignmentClosed || a.Status == AssignmentGraded
}

// AcceptsLateWork reports whether a late deadline is in force.
func (a *Assignment) AcceptsLateWork() bool {
	return a.AllowLateSubmission && a.LateSubmissionDeadline != nil
}

// AcceptingSubmissions reports whether a student may hand in work at now.
func (a *Assignment) AcceptingSubmissions(now time.Time) bool {
	if a.Status != AssignmentPublished {
		return false
	}
	if a.AcceptsLateWork() {
		return !now.After(*a.LateSubmissionDeadline)
	}
	return !now.After(a.DueDate)
}

// SubmissionWindow describes the submission state at now.
func (a *Assignment) SubmissionWindow(now time.Time) string {
	switch {
	case a.Status == AssignmentDraft:
		return WindowDraft
	case a.Status == AssignmentClosed || a.Status == AssignmentGraded:
		return WindowClosed
	case !now.After(a.DueDate):
		return WindowOpen
	case a.AcceptsLateWork() && !now.After(*a.LateSubmissionDeadline):
		return WindowLateSubmission
	default:
		return WindowOverdue
	}
}

// LatePenaltyFor returns the penalty percentage for a submission made at
// submittedAt: the per-day rate times the number of started days late,
// capped at 100.
func (a *Assignment) LatePenaltyFor(submittedAt time.Time) float64 {
	if !a.AllowLateSubmission || !submittedAt.After(a.DueDate) {
		return 0
	}
	daysLate := math.Ceil(submittedAt.Sub(a.DueDate).Hours() / 24)
	return math.Min(a.LatePenalty*daysLate, 100)
}

// WithoutAnswers returns a copy safe to show to students before results are released.
func (a *Assignment) WithoutAnswers() *Assignment {
	clone := *a
	clone.Questions = make(Questions, len(a.Questions))
	for i, q := range a.Questions {
		q.CorrectAnswerIndex = nil
		q.CorrectAnswer = ""
		q.Explanation = ""
		clone.Questions[i] = q
	}
	return &clone
}

// HasGroup reports whether groupID is targeted by the assignment.
func (a *Assignment) HasGroup(groupID string) bool {
	for _, id := range a.GroupIDs {
		if id == groupID {
			return true
		}
	}
	return false
}

// AssignmentFilter narrows assignment listings.
type AssignmentFilter struct {
	CourseID  string
	GroupID   string
	TeacherID string
	// StudentID restricts to published/closed work of the student's groups.
	StudentID string
	Type      AssignmentType
	Status    AssignmentStatus
	Search    string
	DueFrom   *time.Time
	DueTo     *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// AssignmentRequest is the create/update payload.
type AssignmentRequest struct {
	Title                  string            `json:"title" validate:"required,max=200"`
	Description            string            `json:"description" validate:"max=5000"`
	Instructions           string            `json:"instructions" validate:"max=10000"`
	CourseID               string            `json:"course_id" validate:"required"`
	GroupIDs               []string          `json:"group_ids" validate:"required,min=1,dive,required"`
	Type                   AssignmentType    `json:"type" validate:"required,oneof=homework quiz midterm final project presentation lab essay other"`
	Category               string            `json:"category" validate:"omitempty,oneof=individual group pair"`
	MaxPoints              float64           `json:"max_points" validate:"required,gte=1,lte=1000"`
	Weightage              *float64          `json:"weightage" validate:"omitempty,gte=0,lte=100"`
	AssignedDate           *time.Time        `json:"assigned_date"`
	DueDate                time.Time         `json:"due_date" validate:"required"`
	LateSubmissionDeadline *time.Time        `json:"late_submission_deadline"`
	SubmissionType         SubmissionType    `json:"submission_type" validate:"omitempty,oneof=file text link quiz multiple"`
	AllowLateSubmission    *bool             `json:"allow_late_submission"`
	LatePenalty            *float64          `json:"late_penalty" validate:"omitempty,gte=0,lte=100"`
	QuizSettings           *QuizSettings     `json:"quiz_settings"`
	Questions              []Question        `json:"questions" validate:"omitempty,max=200,dive"`
	Rubric                 []RubricCriterion `json:"rubric" validate:"omitempty,dive"`
	Resources              []Resource        `json:"resources" validate:"omitempty,dive"`
}

// BulkAssignmentRequest targets several assignments at once.
type BulkAssignmentRequest struct {
	AssignmentIDs []string `json:"assignment_ids" validate:"required,min=1,max=100,dive,required"`
}

// BulkFailure explains why one item of a bulk request was skipped.
type BulkFailure struct {
	ID     string `json:"id"`
	Code   string `json:"code,omitempty"`
	Title  string `json:"title,omitempty"`
	Reason string `json:"reason"`
}

// Bulk actions name the success count in a BulkResult.
const (
	BulkDeleted   = "deleted"
	BulkPublished = "published"
	BulkClosed    = "closed"
)

// BulkResult summarises a bulk operation. The success count is encoded
// under the name of Action, e.g. {"published": 2, ...}.
type BulkResult struct {
	Action         string        `json:"-"`
	Succeeded      int           `json:"-"`
	Failed         []BulkFailure `json:"failed"`
	TotalRequested int           `json:"total_requested"`
}

// MarshalJSON implements json.Marshaler.
func (r BulkResult) MarshalJSON() ([]byte, error) {
	failed := r.Failed
	if failed == nil {
		failed = []BulkFailure{}
	}
	action := r.Action
	if action == "" {
		action = "succeeded"
	}
	return json.Marshal(map[string]interface{}{
		action:            r.Succeeded,
		"failed":          failed,
		"total_requested": r.TotalRequested,
	})
}

// SubmissionStats summarises submissions of one assignment.
type SubmissionStats struct {
	Total        int     `db:"total" json:"total"`
	Graded       int     `db:"graded" json:"graded"`
	Pending      int     `db:"pending" json:"pending"`
	Late         int     `db:"late" json:"late"`
	AverageGrade float64 `db:"average_grade" json:"average_grade"`
}

// GradeBucket is one range of the grade distribution.
type GradeBucket struct {
	Range string  `json:"range"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// AssignmentStatistics aggregates the performance on one assignment.
type AssignmentStatistics struct {
	AssignmentID      string        `json:"assignment_id"`
	EligibleStudents  int           `json:"eligible_students"`
	TotalSubmissions  int           `json:"total_submissions"`
	GradedSubmissions int           `json:"graded_submissions"`
	LateSubmissions   int           `json:"late_submissions"`
	SubmissionRate    float64       `json:"submission_rate"`
	AverageScore      float64       `json:"average_score"`
	HighestScore      float64       `json:"highest_score"`
	LowestScore       float64       `json:"lowest_score"`
	Distribution      []GradeBucket `json:"distribution"`
}
