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

const groupSelect = `SELECT g.id, g.code, g.name, g.course_id, c.name AS course_name, g.teacher_id, g.capacity, g.price_per_session, g.currency, g.schedule, g.active,
(SELECT COUNT(*) FROM group_students gs WHERE gs.group_id = g.id AND gs.status = 'active') AS student_count, g.created_at, g.updated_at
FROM groups g JOIN courses c ON c.id = g.course_id`

// GroupRepository persists groups and their rosters.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository constructs the repository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// List returns groups matching the filter.
func (r *GroupRepository) List(ctx context.Context, filter models.GroupFilter) ([]models.Group, int, error) {
	where := groupConditions(filter)
	limit, offset := pageWindow(filter.Page, filter.PageSize)

	query := fmt.Sprintf("%s%s ORDER BY g.name ASC LIMIT %d OFFSET %d", groupSelect, where.clause(), limit, offset)
	var groups []models.Group
	if err := r.db.SelectContext(ctx, &groups, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list groups: %w", err)
	}
	var total int
	countQuery := "SELECT COUNT(*) FROM groups g JOIN courses c ON c.id = g.course_id" + where.clause()
	if err := r.db.GetContext(ctx, &total, countQuery, where.args...); err != nil {
		return nil, 0, fmt.Errorf("count groups: %w", err)
	}
	return groups, total, nil
}

// ListAll returns every group matching the filter without pagination, capped at limit.
func (r *GroupRepository) ListAll(ctx context.Context, filter models.GroupFilter, limit int) ([]models.Group, error) {
	where := groupConditions(filter)
	if limit <= 0 {
		limit = 500
	}
	query := fmt.Sprintf("%s%s ORDER BY g.name ASC LIMIT %d", groupSelect, where.clause(), limit)
	var groups []models.Group
	if err := r.db.SelectContext(ctx, &groups, query, where.args...); err != nil {
		return nil, fmt.Errorf("list all groups: %w", err)
	}
	return groups, nil
}

func groupConditions(filter models.GroupFilter) whereBuilder {
	var where whereBuilder
	if filter.CourseID != "" {
		where.add("g.course_id = ?", filter.CourseID)
	}
	if filter.TeacherID != "" {
		where.add("(g.teacher_id = ? OR c.teacher_id = ?)", filter.TeacherID)
	}
	if filter.StudentID != "" {
		where.add("EXISTS (SELECT 1 FROM group_students gs WHERE gs.group_id = g.id AND gs.student_id = ? AND gs.status = 'active')", filter.StudentID)
	}
	if filter.Active != nil {
		where.add("g.active = ?", *filter.Active)
	}
	if filter.Search != "" {
		where.add("(LOWER(g.name) LIKE ? OR LOWER(g.code) LIKE ?)", "%"+strings.ToLower(filter.Search)+"%")
	}
	return where
}

// FindByID returns a group by id.
func (r *GroupRepository) FindByID(ctx context.Context, id string) (*models.Group, error) {
	var group models.Group
	if err := r.db.GetContext(ctx, &group, groupSelect+" WHERE g.id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find group: %w", err)
	}
	return &group, nil
}

// FindByIDs returns the groups with the given ids.
func (r *GroupRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Group, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var groups []models.Group
	if err := r.db.SelectContext(ctx, &groups, groupSelect+" WHERE g.id = ANY($1)", pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find groups: %w", err)
	}
	return groups, nil
}

// Create inserts a group.
func (r *GroupRepository) Create(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	group.CreatedAt = now
	group.UpdatedAt = now
	const query = `INSERT INTO groups (id, code, name, course_id, teacher_id, capacity, price_per_session, currency, schedule, active, created_at, updated_at)
VALUES (:id, :code, :name, :course_id, :teacher_id, :capacity, :price_per_session, :currency, :schedule, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// Update modifies a group.
func (r *GroupRepository) Update(ctx context.Context, group *models.Group) error {
	group.UpdatedAt = time.Now().UTC()
	const query = `UPDATE groups SET code = :code, name = :name, course_id = :course_id, teacher_id = :teacher_id, capacity = :capacity,
price_per_session = :price_per_session, currency = :currency, schedule = :schedule, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	return nil
}

// ListStudents returns the roster of a group. An empty status lists everyone.
func (r *GroupRepository) ListStudents(ctx context.Context, groupID string, status models.EnrollmentStatus) ([]models.GroupStudent, error) {
	query := `SELECT gs.group_id, gs.student_id, u.full_name, u.email, gs.status, gs.enrolled_at
FROM group_students gs JOIN users u ON u.id = gs.student_id WHERE gs.group_id = $1`
	args := []interface{}{groupID}
	if status != "" {
		query += " AND gs.status = $2"
		args = append(args, status)
	}
	query += " ORDER BY u.full_name ASC"
	var students []models.GroupStudent
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, fmt.Errorf("list group students: %w", err)
	}
	return students, nil
}

// Enroll adds a student to a group or reactivates a previous enrolment.
func (r *GroupRepository) Enroll(ctx context.Context, groupID, studentID string) error {
	const query = `INSERT INTO group_students (group_id, student_id, status, enrolled_at) VALUES ($1, $2, 'active', $3)
ON CONFLICT (group_id, student_id) DO UPDATE SET status = 'active', enrolled_at = EXCLUDED.enrolled_at`
	if _, err := r.db.ExecContext(ctx, query, groupID, studentID, time.Now().UTC()); err != nil {
		return fmt.Errorf("enroll student: %w", err)
	}
	return nil
}

// SetStudentStatus changes a roster entry's status.
func (r *GroupRepository) SetStudentStatus(ctx context.Context, groupID, studentID string, status models.EnrollmentStatus) error {
	const query = `UPDATE group_students SET status = $3 WHERE group_id = $1 AND student_id = $2`
	res, err := r.db.ExecContext(ctx, query, groupID, studentID, status)
	if err != nil {
		return fmt.Errorf("update group student: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// StudentGroupIDs returns the groups where the student is actively enrolled.
func (r *GroupRepository) StudentGroupIDs(ctx context.Context, studentID string) ([]string, error) {
	const query = `SELECT group_id FROM group_students WHERE student_id = $1 AND status = 'active'`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, studentID); err != nil {
		return nil, fmt.Errorf("student group ids: %w", err)
	}
	return ids, nil
}

// IsStudentInGroups reports whether the student is active in any of groupIDs.
func (r *GroupRepository) IsStudentInGroups(ctx context.Context, studentID string, groupIDs []string) (bool, error) {
	if len(groupIDs) == 0 {
		return false, nil
	}
	const query = `SELECT EXISTS (SELECT 1 FROM group_students WHERE student_id = $1 AND group_id = ANY($2) AND status = 'active')`
	var ok bool
	if err := r.db.GetContext(ctx, &ok, query, studentID, pq.Array(groupIDs)); err != nil {
		return false, fmt.Errorf("check group membership: %w", err)
	}
	return ok, nil
}

// CountActiveStudents counts distinct active students across groupIDs.
func (r *GroupRepository) CountActiveStudents(ctx context.Context, groupIDs []string) (int, error) {
	if len(groupIDs) == 0 {
		return 0, nil
	}
	const query = `SELECT COUNT(DISTINCT student_id) FROM group_students WHERE group_id = ANY($1) AND status = 'active'`
	var n int
	if err := r.db.GetContext(ctx, &n, query, pq.Array(groupIDs)); err != nil {
		return 0, fmt.Errorf("count active students: %w", err)
	}
	return n, nil
}
