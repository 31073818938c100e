package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-lms-api/internal/models"
)

const attendanceColumns = `a.id, a.course_id, a.group_id, a.student_id, a.teacher_id, a.class_date, a.class_start_time, a.class_end_time, a.class_type,
a.topic, a.room, a.status, a.arrival_time, a.minutes_late, a.minutes_early_leave, a.absence_reason, a.absence_note, a.is_excused,
a.participation_score, a.teacher_notes, a.recorded_by, a.history, a.created_at, a.updated_at`

const attendanceSelect = `SELECT ` + attendanceColumns + `, u.full_name AS student_name FROM attendance a JOIN users u ON u.id = a.student_id`

// AttendanceRepository persists attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

func attendanceConditions(filter models.AttendanceFilter) whereBuilder {
	var where whereBuilder
	if filter.CourseID != "" {
		where.add("a.course_id = ?", filter.CourseID)
	}
	if filter.GroupID != "" {
		where.add("a.group_id = ?", filter.GroupID)
	}
	if filter.StudentID != "" {
		where.add("a.student_id = ?", filter.StudentID)
	}
	if filter.TeacherID != "" {
		where.add("a.teacher_id = ?", filter.TeacherID)
	}
	if filter.Status != "" {
		where.add("a.status = ?", filter.Status)
	}
	if filter.DateFrom != nil {
		where.add("a.class_date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where.add("a.class_date <= ?", *filter.DateTo)
	}
	return where
}

// List returns attendance rows matching filter.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, int, error) {
	where := attendanceConditions(filter)
	limit, offset := pageWindow(filter.Page, filter.PageSize)

	query := fmt.Sprintf("%s%s ORDER BY a.class_date DESC, a.class_start_time DESC LIMIT %d OFFSET %d", attendanceSelect, where.clause(), limit, offset)
	var items []models.Attendance
	if err := r.db.SelectContext(ctx, &items, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM attendance a"+where.clause(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return items, total, nil
}

// ListAll returns every attendance row matching filter, for summaries and exports.
func (r *AttendanceRepository) ListAll(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, error) {
	where := attendanceConditions(filter)
	query := attendanceSelect + where.clause() + " ORDER BY a.class_date ASC, a.class_start_time ASC"
	var items []models.Attendance
	if err := r.db.SelectContext(ctx, &items, query, where.args...); err != nil {
		return nil, fmt.Errorf("list all attendance: %w", err)
	}
	return items, nil
}

// FindByID returns a record by id.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.Attendance, error) {
	var item models.Attendance
	if err := r.db.GetContext(ctx, &item, attendanceSelect+" WHERE a.id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find attendance: %w", err)
	}
	return &item, nil
}

// Create inserts a record. The (student, course, date, start time) unique
// constraint surfaces as a pq 23505 error.
func (r *AttendanceRepository) Create(ctx context.Context, item *models.Attendance) error {
	return r.insert(ctx, r.db, item)
}

// CreateBatch inserts records in one transaction, skipping rows that collide
// with an existing record. It returns the inserted rows and the skipped students.
func (r *AttendanceRepository) CreateBatch(ctx context.Context, items []models.Attendance) ([]models.Attendance, []string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin attendance batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	created := make([]models.Attendance, 0, len(items))
	var skipped []string
	for i := range items {
		item := items[i]
		var exists bool
		const dupQuery = `SELECT EXISTS (SELECT 1 FROM attendance WHERE student_id = $1 AND course_id = $2 AND class_date = $3 AND class_start_time = $4)`
		if err := tx.GetContext(ctx, &exists, dupQuery, item.StudentID, item.CourseID, item.ClassDate, item.ClassStartTime); err != nil {
			return nil, nil, fmt.Errorf("check attendance duplicate: %w", err)
		}
		if exists {
			skipped = append(skipped, item.StudentID)
			continue
		}
		if err := r.insert(ctx, tx, &item); err != nil {
			return nil, nil, err
		}
		created = append(created, item)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit attendance batch: %w", err)
	}
	return created, skipped, nil
}

func (r *AttendanceRepository) insert(ctx context.Context, exec sqlx.ExtContext, item *models.Attendance) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	const query = `INSERT INTO attendance (id, course_id, group_id, student_id, teacher_id, class_date, class_start_time, class_end_time, class_type, topic,
room, status, arrival_time, minutes_late, minutes_early_leave, absence_reason, absence_note, is_excused, participation_score, teacher_notes,
recorded_by, history, created_at, updated_at)
VALUES (:id, :course_id, :group_id, :student_id, :teacher_id, :class_date, :class_start_time, :class_end_time, :class_type, :topic,
:room, :status, :arrival_time, :minutes_late, :minutes_early_leave, :absence_reason, :absence_note, :is_excused, :participation_score, :teacher_notes,
:recorded_by, :history, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, item); err != nil {
		return fmt.Errorf("create attendance: %w", err)
	}
	return nil
}

// Update stores the mutable fields of a record.
func (r *AttendanceRepository) Update(ctx context.Context, item *models.Attendance) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE attendance SET status = :status, arrival_time = :arrival_time, minutes_late = :minutes_late, absence_reason = :absence_reason,
absence_note = :absence_note, is_excused = :is_excused, participation_score = :participation_score, teacher_notes = :teacher_notes,
history = :history, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("update attendance: %w", err)
	}
	return nil
}

// CountAttendedSessions counts, per student, the present records of a group inside [from, to].
func (r *AttendanceRepository) CountAttendedSessions(ctx context.Context, groupID string, from, to time.Time) ([]models.SessionCharge, error) {
	const query = `SELECT a.student_id, u.full_name AS student_name, COUNT(*) AS sessions_attended
FROM attendance a JOIN users u ON u.id = a.student_id
WHERE a.group_id = $1 AND a.class_date >= $2 AND a.class_date <= $3 AND a.status = 'present'
GROUP BY a.student_id, u.full_name ORDER BY u.full_name`
	var rows []models.SessionCharge
	if err := r.db.SelectContext(ctx, &rows, query, groupID, from, to); err != nil {
		return nil, fmt.Errorf("count attended sessions: %w", err)
	}
	return rows, nil
}
