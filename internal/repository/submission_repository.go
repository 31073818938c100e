package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/school-lms-api/internal/models"
)

const submissionColumns = `s.id, s.assignment_id, s.student_id, s.course_id, s.submission_type, s.text_content, s.links, s.attachments, s.quiz_answers,
s.submitted_at, s.started_at, s.time_spent, s.time_limit_exceeded, s.is_late, s.late_penalty, s.penalty_waived, s.attempt_number, s.status,
s.points_earned, s.percentage, s.final_points, s.final_percentage, s.letter_grade, s.feedback, s.private_notes, s.rubric_grades, s.graded_by,
s.graded_at, s.grade_history, s.version, s.created_at, s.updated_at`

const submissionSelect = `SELECT ` + submissionColumns + `, u.full_name AS student_name, a.title AS assignment_title
FROM submissions s JOIN users u ON u.id = s.student_id JOIN assignments a ON a.id = s.assignment_id`

// SubmissionRepository persists submissions and their grades.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create inserts a new submission.
func (r *SubmissionRepository) Create(ctx context.Context, s *models.Submission) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	if s.Version == 0 {
		s.Version = 1
	}
	const query = `INSERT INTO submissions (id, assignment_id, student_id, course_id, submission_type, text_content, links, attachments, quiz_answers,
submitted_at, started_at, time_spent, time_limit_exceeded, is_late, late_penalty, penalty_waived, attempt_number, status, points_earned, percentage,
final_points, final_percentage, letter_grade, feedback, private_notes, rubric_grades, graded_by, graded_at, grade_history, version, created_at, updated_at)
VALUES (:id, :assignment_id, :student_id, :course_id, :submission_type, :text_content, :links, :attachments, :quiz_answers,
:submitted_at, :started_at, :time_spent, :time_limit_exceeded, :is_late, :late_penalty, :penalty_waived, :attempt_number, :status, :points_earned, :percentage,
:final_points, :final_percentage, :letter_grade, :feedback, :private_notes, :rubric_grades, :graded_by, :graded_at, :grade_history, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, s); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// Update stores the submission when its version still matches, then bumps
// the version. A concurrent modification yields sql.ErrNoRows.
func (r *SubmissionRepository) Update(ctx context.Context, s *models.Submission) error {
	s.UpdatedAt = time.Now().UTC()
	const query = `UPDATE submissions SET submission_type = :submission_type, text_content = :text_content, links = :links, attachments = :attachments,
quiz_answers = :quiz_answers, submitted_at = :submitted_at, started_at = :started_at, time_spent = :time_spent, time_limit_exceeded = :time_limit_exceeded,
is_late = :is_late, late_penalty = :late_penalty, penalty_waived = :penalty_waived, attempt_number = :attempt_number, status = :status,
points_earned = :points_earned, percentage = :percentage, final_points = :final_points, final_percentage = :final_percentage,
letter_grade = :letter_grade, feedback = :feedback, private_notes = :private_notes, rubric_grades = :rubric_grades, graded_by = :graded_by,
graded_at = :graded_at, grade_history = :grade_history, version = version + 1, updated_at = :updated_at
WHERE id = :id AND version = :version`
	res, err := r.db.NamedExecContext(ctx, query, s)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	s.Version++
	return nil
}

// FindByID returns a submission by id.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	var s models.Submission
	if err := r.db.GetContext(ctx, &s, submissionSelect+" WHERE s.id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find submission: %w", err)
	}
	return &s, nil
}

// FindByAssignmentAndStudent returns the student's submission for an assignment.
func (r *SubmissionRepository) FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error) {
	var s models.Submission
	if err := r.db.GetContext(ctx, &s, submissionSelect+" WHERE s.assignment_id = $1 AND s.student_id = $2", assignmentID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student submission: %w", err)
	}
	return &s, nil
}

// List returns submissions matching filter.
func (r *SubmissionRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error) {
	var where whereBuilder
	if filter.AssignmentID != "" {
		where.add("s.assignment_id = ?", filter.AssignmentID)
	}
	if filter.StudentID != "" {
		where.add("s.student_id = ?", filter.StudentID)
	}
	if filter.CourseID != "" {
		where.add("s.course_id = ?", filter.CourseID)
	}
	if filter.TeacherID != "" {
		where.add("a.teacher_id = ?", filter.TeacherID)
	}
	if filter.Status != "" {
		where.add("s.status = ?", filter.Status)
	}
	limit, offset := pageWindow(filter.Page, filter.PageSize)

	query := fmt.Sprintf("%s%s ORDER BY s.submitted_at DESC LIMIT %d OFFSET %d", submissionSelect, where.clause(), limit, offset)
	var items []models.Submission
	if err := r.db.SelectContext(ctx, &items, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}
	countQuery := "SELECT COUNT(*) FROM submissions s JOIN assignments a ON a.id = s.assignment_id" + where.clause()
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, where.args...); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}
	return items, total, nil
}

// Stats aggregates the submissions of an assignment.
func (r *SubmissionRepository) Stats(ctx context.Context, assignmentID string) (models.SubmissionStats, error) {
	const query = `SELECT COUNT(*) AS total,
COUNT(*) FILTER (WHERE status IN ('graded', 'returned')) AS graded,
COUNT(*) FILTER (WHERE status IN ('submitted', 'grading')) AS pending,
COUNT(*) FILTER (WHERE is_late) AS late,
COALESCE(ROUND(AVG(final_percentage) FILTER (WHERE status IN ('graded', 'returned'))), 0) AS average_grade
FROM submissions WHERE assignment_id = $1`
	var stats models.SubmissionStats
	if err := r.db.GetContext(ctx, &stats, query, assignmentID); err != nil {
		return stats, fmt.Errorf("submission stats: %w", err)
	}
	return stats, nil
}

// GradedPercentages returns the final percentages of graded submissions.
func (r *SubmissionRepository) GradedPercentages(ctx context.Context, assignmentID string) ([]float64, error) {
	const query = `SELECT final_percentage FROM submissions WHERE assignment_id = $1 AND status IN ('graded', 'returned') AND final_percentage IS NOT NULL`
	var pcts []float64
	if err := r.db.SelectContext(ctx, &pcts, query, assignmentID); err != nil {
		return nil, fmt.Errorf("graded percentages: %w", err)
	}
	return pcts, nil
}

// CountByAssignments returns the number of submissions per assignment id.
func (r *SubmissionRepository) CountByAssignments(ctx context.Context, ids []string) (map[string]int, error) {
	counts := make(map[string]int, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}
	const query = `SELECT assignment_id, COUNT(*) AS count FROM submissions WHERE assignment_id = ANY($1) GROUP BY assignment_id`
	var rows []struct {
		AssignmentID string `db:"assignment_id"`
		Count        int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("count submissions: %w", err)
	}
	for _, row := range rows {
		counts[row.AssignmentID] = row.Count
	}
	return counts, nil
}

// ListGradedWork returns graded submissions of a student joined with the
// assignment weightage. An empty courseID covers every course.
func (r *SubmissionRepository) ListGradedWork(ctx context.Context, studentID, courseID string) ([]models.GradedWork, error) {
	var where whereBuilder
	where.add("s.student_id = ?", studentID)
	where.addRaw("s.status IN ('graded', 'returned')")
	if courseID != "" {
		where.add("s.course_id = ?", courseID)
	}
	query := `SELECT s.id AS submission_id, a.id AS assignment_id, a.title AS assignment_title, a.type AS assignment_type, c.id AS course_id,
c.name AS course_name, s.student_id, a.max_points, a.weightage, s.status, s.final_points, s.graded_at
FROM submissions s JOIN assignments a ON a.id = s.assignment_id JOIN courses c ON c.id = s.course_id` + where.clause() + " ORDER BY c.name, s.graded_at"
	var items []models.GradedWork
	if err := r.db.SelectContext(ctx, &items, query, where.args...); err != nil {
		return nil, fmt.Errorf("list graded work: %w", err)
	}
	return items, nil
}

// Gradebook returns one row per submission of the course's assignments.
func (r *SubmissionRepository) Gradebook(ctx context.Context, courseID, teacherID string) ([]models.GradebookRow, error) {
	var where whereBuilder
	if courseID != "" {
		where.add("a.course_id = ?", courseID)
	}
	if teacherID != "" {
		where.add("a.teacher_id = ?", teacherID)
	}
	query := `SELECT u.full_name AS student_name, u.email AS student_email, a.code AS assignment_code, a.title AS assignment_title, a.max_points,
s.status, s.is_late, s.final_points, s.final_percentage, s.letter_grade, s.submitted_at, s.graded_at
FROM submissions s JOIN assignments a ON a.id = s.assignment_id JOIN users u ON u.id = s.student_id` + where.clause() + " ORDER BY u.full_name, a.due_date"
	var rows []models.GradebookRow
	if err := r.db.SelectContext(ctx, &rows, query, where.args...); err != nil {
		return nil, fmt.Errorf("gradebook: %w", err)
	}
	return rows, nil
}
