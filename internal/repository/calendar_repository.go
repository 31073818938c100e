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

const calendarColumns = `id, title, description, event_type, start_date, end_date, all_day, audience, location, created_by, created_at, updated_at`

// CalendarRepository stores school-wide events. Assignment deadlines are
// not kept here; the calendar service merges them in from assignments.
type CalendarRepository struct {
	db *sqlx.DB
}

func NewCalendarRepository(db *sqlx.DB) *CalendarRepository {
	return &CalendarRepository{db: db}
}

// overlapping matches events intersecting [from, to]; open ends are unbounded.
func overlapping(from, to *time.Time, audiences []models.EventAudience) whereBuilder {
	var where whereBuilder
	if from != nil {
		where.add("end_date >= ?", *from)
	}
	if to != nil {
		where.add("start_date <= ?", *to)
	}
	if len(audiences) > 0 {
		names := make([]string, 0, len(audiences))
		for _, a := range audiences {
			names = append(names, string(a))
		}
		where.add("audience = ANY(?)", pq.Array(names))
	}
	return where
}

func (r *CalendarRepository) selectEvents(ctx context.Context, where whereBuilder, tail string) ([]models.CalendarEvent, error) {
	events := []models.CalendarEvent{}
	query := "SELECT " + calendarColumns + " FROM calendar_events" + where.clause() + " ORDER BY start_date ASC" + tail
	err := r.db.SelectContext(ctx, &events, query, where.args...)
	return events, err
}

func (r *CalendarRepository) List(ctx context.Context, filter models.CalendarFilter) ([]models.CalendarEvent, int, error) {
	where := overlapping(filter.StartDate, filter.EndDate, filter.Audience)
	limit, offset := pageWindow(filter.Page, filter.PageSize)
	events, err := r.selectEvents(ctx, where, fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))
	if err != nil {
		return nil, 0, fmt.Errorf("list calendar events: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM calendar_events"+where.clause(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count calendar events: %w", err)
	}
	return events, total, nil
}

// ListRange returns every event in the window visible to audiences.
func (r *CalendarRepository) ListRange(ctx context.Context, from, to time.Time, audiences []models.EventAudience) ([]models.CalendarEvent, error) {
	events, err := r.selectEvents(ctx, overlapping(&from, &to, audiences), "")
	if err != nil {
		return nil, fmt.Errorf("calendar range %s..%s: %w", from.Format(time.DateOnly), to.Format(time.DateOnly), err)
	}
	return events, nil
}

func (r *CalendarRepository) GetByID(ctx context.Context, id string) (*models.CalendarEvent, error) {
	var event models.CalendarEvent
	err := r.db.GetContext(ctx, &event, "SELECT "+calendarColumns+" FROM calendar_events WHERE id = $1", id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("get calendar event %s: %w", id, err)
	}
	return &event, nil
}

func (r *CalendarRepository) Create(ctx context.Context, event *models.CalendarEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	event.UpdatedAt = time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = event.UpdatedAt
	}
	const query = `INSERT INTO calendar_events (` + calendarColumns + `)
VALUES (:id, :title, :description, :event_type, :start_date, :end_date, :all_day, :audience, :location, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create calendar event: %w", err)
	}
	return nil
}

// Update rewrites every editable column of event.
func (r *CalendarRepository) Update(ctx context.Context, event *models.CalendarEvent) error {
	event.UpdatedAt = time.Now().UTC()
	var set setBuilder
	set.set("title", event.Title)
	set.set("description", event.Description)
	set.set("event_type", event.EventType)
	set.set("start_date", event.StartDate)
	set.set("end_date", event.EndDate)
	set.set("all_day", event.AllDay)
	set.set("audience", event.Audience)
	set.set("location", event.Location)
	set.set("updated_at", event.UpdatedAt)
	query, args := set.update("calendar_events", event.ID)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update calendar event %s: %w", event.ID, err)
	}
	return nil
}

func (r *CalendarRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM calendar_events WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete calendar event %s: %w", id, err)
	}
	return nil
}
