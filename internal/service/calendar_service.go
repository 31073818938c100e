package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-lms-api/internal/models"
	appErrors "github.com/noah-isme/school-lms-api/pkg/errors"
	"github.com/noah-isme/school-lms-api/pkg/validation"
)

const (
	adminCalendarGroupLimit = 100
	upcomingWindow          = 7 * 24 * time.Hour
	defaultUpcomingLimit    = 10
)

var entryColors = map[string]string{
	models.EntryAssignment: "#3B82F6",
	models.EntryQuiz:       "#EF4444",
	models.EntrySession:    "#10B981",
	models.EntryEvent:      "#8B5CF6",
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

type calendarRepository interface {
	List(ctx context.Context, filter models.CalendarFilter) ([]models.CalendarEvent, int, error)
	ListRange(ctx context.Context, from, to time.Time, audiences []models.EventAudience) ([]models.CalendarEvent, error)
	GetByID(ctx context.Context, id string) (*models.CalendarEvent, error)
	Create(ctx context.Context, event *models.CalendarEvent) error
	Update(ctx context.Context, event *models.CalendarEvent) error
	Delete(ctx context.Context, id string) error
}

type deadlineLister interface {
	ListDeadlines(ctx context.Context, groupIDs []string, from, to time.Time, statuses []models.AssignmentStatus, kind string, limit int) ([]models.CalendarAssignment, error)
}

type calendarGroupLister interface {
	ListAll(ctx context.Context, filter models.GroupFilter, limit int) ([]models.Group, error)
}

// CalendarService builds personal calendars and manages school events.
type CalendarService struct {
	repo        calendarRepository
	assignments deadlineLister
	groups      calendarGroupLister
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewCalendarService constructs the service.
func NewCalendarService(repo calendarRepository, assignments deadlineLister, groups calendarGroupLister, validate *validator.Validate, logger *zap.Logger) *CalendarService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarService{repo: repo, assignments: assignments, groups: groups, validator: validate, logger: logger, now: time.Now}
}

// CalendarRange resolves the window of a calendar view. Weeks run Sunday to
// Saturday. Unknown views fall back to the month.
func CalendarRange(q models.CalendarQuery, now time.Time) models.DateRange {
	now = now.UTC()
	year, month, day := now.Year(), now.Month(), now.Day()
	if q.Year > 0 {
		year = q.Year
	}
	if q.Month >= 1 && q.Month <= 12 {
		month = time.Month(q.Month)
	}
	if q.Day > 0 {
		day = q.Day
	}
	endOfDay := func(t time.Time) time.Time { return t.Add(24*time.Hour - time.Second) }

	switch q.View {
	case "week":
		anchor := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		start := anchor.AddDate(0, 0, -int(anchor.Weekday()))
		return models.DateRange{Start: start, End: endOfDay(start.AddDate(0, 0, 6))}
	case "day":
		start := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		return models.DateRange{Start: start, End: endOfDay(start)}
	default:
		start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		return models.DateRange{Start: start, End: endOfDay(start.AddDate(0, 1, -1))}
	}
}

// MyCalendar aggregates deadlines, group sessions and school events for the
// caller's groups inside the requested view.
func (s *CalendarService) MyCalendar(ctx context.Context, q models.CalendarQuery, claims *models.JWTClaims) (*models.CalendarView, error) {
	switch q.Type {
	case "", models.EntryAssignment, models.EntryQuiz, models.EntrySession, models.EntryEvent:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "type must be one of assignment, quiz, session, event")
	}
	window := CalendarRange(q, s.now())
	groups, err := s.userGroups(ctx, claims)
	if err != nil {
		return nil, err
	}
	groupIDs := make([]string, len(groups))
	for i, g := range groups {
		groupIDs[i] = g.ID
	}

	var entries []models.CalendarEntry
	if q.Type == "" || q.Type == models.EntryAssignment || q.Type == models.EntryQuiz {
		deadlines, err := s.assignments.ListDeadlines(ctx, groupIDs, window.Start, window.End,
			[]models.AssignmentStatus{models.AssignmentPublished, models.AssignmentClosed}, q.Type, 0)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load deadlines")
		}
		for _, d := range deadlines {
			entries = append(entries, deadlineEntry(d))
		}
	}
	if q.Type == "" || q.Type == models.EntrySession {
		for _, g := range groups {
			for _, session := range g.Schedule {
				entries = append(entries, SessionOccurrences(g, session, window.Start, window.End)...)
			}
		}
	}
	if q.Type == "" || q.Type == models.EntryEvent {
		events, err := s.repo.ListRange(ctx, window.Start, window.End, models.AudiencesFor(claims.Role))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school events")
		}
		for _, e := range events {
			entries = append(entries, eventEntry(e))
		}
	}
	return buildCalendarView(entries, window), nil
}

// Upcoming lists published deadlines of the caller's groups due within the
// next seven days.
func (s *CalendarService) Upcoming(ctx context.Context, limit int, claims *models.JWTClaims) ([]models.UpcomingDeadline, error) {
	if limit <= 0 {
		limit = defaultUpcomingLimit
	}
	groups, err := s.userGroups(ctx, claims)
	if err != nil {
		return nil, err
	}
	groupIDs := make([]string, len(groups))
	for i, g := range groups {
		groupIDs[i] = g.ID
	}
	now := s.now().UTC()
	deadlines, err := s.assignments.ListDeadlines(ctx, groupIDs, now, now.Add(upcomingWindow),
		[]models.AssignmentStatus{models.AssignmentPublished}, "", limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load upcoming deadlines")
	}
	out := make([]models.UpcomingDeadline, 0, len(deadlines))
	for _, d := range deadlines {
		out = append(out, models.UpcomingDeadline{
			ID:        d.ID,
			Type:      entryKind(d.Type),
			Title:     d.Title,
			Date:      d.DueDate,
			Course:    d.CourseName,
			DaysUntil: int(math.Ceil(d.DueDate.Sub(now).Hours() / 24)),
		})
	}
	return out, nil
}

// ListEvents lists school events visible to the caller's role.
func (s *CalendarService) ListEvents(ctx context.Context, filter models.CalendarFilter, claims *models.JWTClaims) ([]models.CalendarEvent, *models.Pagination, error) {
	if !claims.Role.IsAdmin() || len(filter.Audience) == 0 {
		filter.Audience = models.AudiencesFor(claims.Role)
	}
	events, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list calendar events")
	}
	if events == nil {
		events = []models.CalendarEvent{}
	}
	return events, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// GetEvent returns one school event if its audience includes the caller.
func (s *CalendarService) GetEvent(ctx context.Context, id string, claims *models.JWTClaims) (*models.CalendarEvent, error) {
	event, err := s.loadEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, a := range models.AudiencesFor(claims.Role) {
		if a == event.Audience {
			return event, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
}

// CreateEvent registers a school event.
func (s *CalendarService) CreateEvent(ctx context.Context, req models.CalendarEventRequest, claims *models.JWTClaims) (*models.CalendarEvent, error) {
	if err := s.validateEvent(req, claims); err != nil {
		return nil, err
	}
	event := &models.CalendarEvent{CreatedBy: claims.UserID}
	applyEvent(event, req)
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create event")
	}
	return event, nil
}

// UpdateEvent replaces a school event.
func (s *CalendarService) UpdateEvent(ctx context.Context, id string, req models.CalendarEventRequest, claims *models.JWTClaims) (*models.CalendarEvent, error) {
	if err := s.validateEvent(req, claims); err != nil {
		return nil, err
	}
	event, err := s.loadEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	applyEvent(event, req)
	if err := s.repo.Update(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update event")
	}
	return event, nil
}

// DeleteEvent removes a school event.
func (s *CalendarService) DeleteEvent(ctx context.Context, id string, claims *models.JWTClaims) error {
	if !claims.Role.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins manage school events")
	}
	if _, err := s.loadEvent(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete event")
	}
	return nil
}

func (s *CalendarService) validateEvent(req models.CalendarEventRequest, claims *models.JWTClaims) error {
	if !claims.Role.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins manage school events")
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}
	if req.EndDate.Before(req.StartDate) {
		return appErrors.Clone(appErrors.ErrValidation, "end_date must be on or after start_date")
	}
	return nil
}

func (s *CalendarService) loadEvent(ctx context.Context, id string) (*models.CalendarEvent, error) {
	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	return event, nil
}

// userGroups returns the groups feeding the caller's calendar: active
// enrolments for students, taught groups for teachers and a capped list of
// all groups for admins.
func (s *CalendarService) userGroups(ctx context.Context, claims *models.JWTClaims) ([]models.Group, error) {
	var (
		filter models.GroupFilter
		limit  int
	)
	switch {
	case claims.Role.IsAdmin():
		limit = adminCalendarGroupLimit
	case claims.Role == models.RoleTeacher:
		filter.TeacherID = claims.UserID
	case claims.Role == models.RoleStudent:
		filter.StudentID = claims.UserID
	default:
		return nil, nil
	}
	groups, err := s.groups.ListAll(ctx, filter, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load groups")
	}
	return groups, nil
}

func applyEvent(event *models.CalendarEvent, req models.CalendarEventRequest) {
	event.Title = strings.TrimSpace(req.Title)
	event.Description = req.Description
	event.EventType = req.EventType
	event.StartDate = req.StartDate.UTC()
	event.EndDate = req.EndDate.UTC()
	event.AllDay = req.AllDay
	event.Audience = req.Audience
	if event.Audience == "" {
		event.Audience = models.AudienceAll
	}
	event.Location = req.Location
}

// SessionOccurrences expands one weekly session of g into dated entries
// inside [from, to].
func SessionOccurrences(g models.Group, session models.GroupSession, from, to time.Time) []models.CalendarEntry {
	weekday, ok := weekdays[strings.ToLower(session.Day)]
	if !ok {
		return nil
	}
	start, err := time.Parse("15:04", session.StartTime)
	if err != nil {
		return nil
	}
	day := startOfDay(from.UTC())
	for day.Weekday() != weekday {
		day = day.AddDate(0, 0, 1)
	}
	description := session.StartTime + " - " + session.EndTime
	if session.Room != "" {
		description += " • Room " + session.Room
	}

	var out []models.CalendarEntry
	for ; !day.After(to); day = day.AddDate(0, 0, 7) {
		at := day.Add(time.Duration(start.Hour())*time.Hour + time.Duration(start.Minute())*time.Minute)
		if at.Before(from) || at.After(to) {
			continue
		}
		out = append(out, models.CalendarEntry{
			ID:          fmt.Sprintf("%s_%s_%d", g.ID, strings.ToLower(session.Day), at.UnixMilli()),
			Type:        models.EntrySession,
			Title:       g.Name + " - Class Session",
			Description: description,
			Date:        at,
			Color:       entryColors[models.EntrySession],
			Course:      g.CourseName,
			Group:       g.Name,
			Metadata: map[string]interface{}{
				"group_id":   g.ID,
				"group_code": g.Code,
				"day":        session.Day,
				"start_time": session.StartTime,
				"end_time":   session.EndTime,
				"room":       session.Room,
				"duration":   models.MinutesBetween(session.StartTime, session.EndTime),
			},
		})
	}
	return out
}

func entryKind(t models.AssignmentType) string {
	if t == models.AssignmentQuiz {
		return models.EntryQuiz
	}
	return models.EntryAssignment
}

func deadlineEntry(d models.CalendarAssignment) models.CalendarEntry {
	kind := entryKind(d.Type)
	label := "Assignment"
	if kind == models.EntryQuiz {
		label = "Quiz"
	}
	return models.CalendarEntry{
		ID:          d.ID,
		Type:        kind,
		Title:       d.Title,
		Description: fmt.Sprintf("%s - %g points", label, d.MaxPoints),
		Date:        d.DueDate,
		Color:       entryColors[kind],
		Course:      d.CourseName,
		Status:      d.Status,
		Metadata: map[string]interface{}{
			"code":            d.Code,
			"max_points":      d.MaxPoints,
			"assignment_type": d.Type,
		},
	}
}

func eventEntry(e models.CalendarEvent) models.CalendarEntry {
	end := e.EndDate
	entry := models.CalendarEntry{
		ID:          e.ID,
		Type:        models.EntryEvent,
		Title:       e.Title,
		Description: e.Description,
		Date:        e.StartDate,
		EndDate:     &end,
		AllDay:      e.AllDay,
		Color:       entryColors[models.EntryEvent],
		Metadata: map[string]interface{}{
			"event_type": e.EventType,
			"audience":   e.Audience,
		},
	}
	if e.Location != nil {
		entry.Metadata["location"] = *e.Location
	}
	return entry
}

func buildCalendarView(entries []models.CalendarEntry, window models.DateRange) *models.CalendarView {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Date.Before(entries[j].Date) })
	view := &models.CalendarView{
		Events:       entries,
		EventsByDate: map[string][]models.CalendarEntry{},
		DateRange:    window,
	}
	if view.Events == nil {
		view.Events = []models.CalendarEntry{}
	}
	for _, e := range entries {
		key := e.Date.UTC().Format("2006-01-02")
		view.EventsByDate[key] = append(view.EventsByDate[key], e)
		view.Stats.Total++
		switch e.Type {
		case models.EntryAssignment:
			view.Stats.Assignments++
		case models.EntryQuiz:
			view.Stats.Quizzes++
		case models.EntrySession:
			view.Stats.Sessions++
		case models.EntryEvent:
			view.Stats.Events++
		}
	}
	return view
}
