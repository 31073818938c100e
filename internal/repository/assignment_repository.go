package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/school-lms-api/internal/models"
)

const assignmentColumns = `id, code, title, description, instructions, course_id, teacher_id, group_ids, type, category, max_points, weightage,
assigned_date, due_date, late_submission_deadline, submission_type, allow_late_submission, late_penalty, quiz_settings, questions, rubric,
resources, status, published_at, created_at, updated_at`

// AssignmentRepository persists assignments.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// List returns assignments matching filter with the total count.
func (r *AssignmentRepository) List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error) {
	var where whereBuilder
	if filter.CourseID != "" {
		where.add("course_id = ?", filter.CourseID)
	}
	if filter.GroupID != "" {
		where.add("? = ANY(group_ids)", filter.GroupID)
	}
	if filter.TeacherID != "" {
		where.add("teacher_id = ?", filter.TeacherID)
	}
	if filter.StudentID != "" {
		where.add("group_ids && ARRAY(SELECT group_id FROM group_students WHERE student_id = ? AND status = 'active')", filter.StudentID)
		where.addRaw("status IN ('published', 'closed')")
	}
	if filter.Type != "" {
		where.add("type = ?", filter.Type)
	}
	if filter.Status != "" {
		where.add("status = ?", filter.Status)
	}
	if filter.Search != "" {
		where.add("(LOWER(title) LIKE ? OR LOWER(code) LIKE ?)", "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.DueFrom != nil {
		where.add("due_date >= ?", *filter.DueFrom)
	}
	if filter.DueTo != nil {
		where.add("due_date <= ?", *filter.DueTo)
	}
	base := "FROM assignments" + where.clause()

	allowedSorts := map[string]bool{"due_date": true, "created_at": true, "title": true, "assigned_date": true}
	sortBy := filter.SortBy
	if !allowedSorts[sortBy] {
		sortBy = "due_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	limit, offset := pageWindow(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", assignmentColumns, base, sortBy, order, limit, offset)
	var items []models.Assignment
	if err := r.db.SelectContext(ctx, &items, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, where.args...); err != nil {
		return nil, 0, fmt.Errorf("count assignments: %w", err)
	}
	return items, total, nil
}

// FindByID returns an assignment by id.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	var a models.Assignment
	if err := r.db.GetContext(ctx, &a, "SELECT "+assignmentColumns+" FROM assignments WHERE id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find assignment: %w", err)
	}
	return &a, nil
}

// FindByIDs returns the assignments with the given ids.
func (r *AssignmentRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Assignment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []models.Assignment
	if err := r.db.SelectContext(ctx, &items, "SELECT "+assignmentColumns+" FROM assignments WHERE id = ANY($1)", pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find assignments: %w", err)
	}
	return items, nil
}

// Create assigns a code from assignment_code_seq and inserts the assignment.
func (r *AssignmentRepository) Create(ctx context.Context, a *models.Assignment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	code, err := nextCode(ctx, r.db, "assignment_code_seq", "AS-%06d")
	if err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	a.Code = code
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	const query = `INSERT INTO assignments (id, code, title, description, instructions, course_id, teacher_id, group_ids, type, category, max_points, weightage,
assigned_date, due_date, late_submission_deadline, submission_type, allow_late_submission, late_penalty, quiz_settings, questions, rubric,
resources, status, published_at, created_at, updated_at)
VALUES (:id, :code, :title, :description, :instructions, :course_id, :teacher_id, :group_ids, :type, :category, :max_points, :weightage,
:assigned_date, :due_date, :late_submission_deadline, :submission_type, :allow_late_submission, :late_penalty, :quiz_settings, :questions, :rubric,
:resources, :status, :published_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// Update stores all mutable fields of an assignment.
func (r *AssignmentRepository) Update(ctx context.Context, a *models.Assignment) error {
	a.UpdatedAt = time.Now().UTC()
	const query = `UPDATE assignments SET title = :title, description = :description, instructions = :instructions, course_id = :course_id,
group_ids = :group_ids, type = :type, category = :category, max_points = :max_points, weightage = :weightage, assigned_date = :assigned_date,
due_date = :due_date, late_submission_deadline = :late_submission_deadline, submission_type = :submission_type,
allow_late_submission = :allow_late_submission, late_penalty = :late_penalty, quiz_settings = :quiz_settings, questions = :questions,
rubric = :rubric, resources = :resources, status = :status, published_at = :published_at, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	return nil
}

// UpdateStatus moves an assignment to status.
func (r *AssignmentRepository) UpdateStatus(ctx context.Context, id string, status models.AssignmentStatus, publishedAt *time.Time) error {
	const query = `UPDATE assignments SET status = $2, published_at = COALESCE($3, published_at), updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, publishedAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("update assignment status: %w", err)
	}
	return nil
}

// Delete removes an assignment.
func (r *AssignmentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM assignments WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return nil
}

// ListDeadlines returns assignments of groupIDs due inside [from, to] with one of statuses.
// kind filters to quizzes ("quiz"), non-quizzes ("assignment") or both ("").
func (r *AssignmentRepository) ListDeadlines(ctx context.Context, groupIDs []string, from, to time.Time, statuses []models.AssignmentStatus, kind string, limit int) ([]models.CalendarAssignment, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	states := make([]string, len(statuses))
	for i, s := range statuses {
		states[i] = string(s)
	}
	var where whereBuilder
	where.add("a.group_ids && ?", pq.Array(groupIDs))
	where.add("a.due_date >= ?", from)
	where.add("a.due_date <= ?", to)
	where.add("a.status = ANY(?)", pq.Array(states))
	switch kind {
	case models.EntryQuiz:
		where.addRaw("a.type = 'quiz'")
	case models.EntryAssignment:
		where.addRaw("a.type <> 'quiz'")
	}
	query := `SELECT a.id, a.code, a.title, a.type, a.status, a.due_date, a.max_points, c.name AS course_name
FROM assignments a JOIN courses c ON c.id = a.course_id` + where.clause() + " ORDER BY a.due_date ASC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	var items []models.CalendarAssignment
	if err := r.db.SelectContext(ctx, &items, query, where.args...); err != nil {
		return nil, fmt.Errorf("list assignment deadlines: %w", err)
	}
	return items, nil
}
