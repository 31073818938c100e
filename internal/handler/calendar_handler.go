package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-lms-api/internal/models"
	"github.com/noah-isme/school-lms-api/pkg/response"
)

type calendarService interface {
	MyCalendar(ctx context.Context, q models.CalendarQuery, claims *models.JWTClaims) (*models.CalendarView, error)
	Upcoming(ctx context.Context, limit int, claims *models.JWTClaims) ([]models.UpcomingDeadline, error)
	ListEvents(ctx context.Context, filter models.CalendarFilter, claims *models.JWTClaims) ([]models.CalendarEvent, *models.Pagination, error)
	GetEvent(ctx context.Context, id string, claims *models.JWTClaims) (*models.CalendarEvent, error)
	CreateEvent(ctx context.Context, req models.CalendarEventRequest, claims *models.JWTClaims) (*models.CalendarEvent, error)
	UpdateEvent(ctx context.Context, id string, req models.CalendarEventRequest, claims *models.JWTClaims) (*models.CalendarEvent, error)
	DeleteEvent(ctx context.Context, id string, claims *models.JWTClaims) error
}

// CalendarHandler exposes the personal calendar and school events.
type CalendarHandler struct {
	service calendarService
}

// NewCalendarHandler constructs the handler.
func NewCalendarHandler(svc calendarService) *CalendarHandler {
	return &CalendarHandler{service: svc}
}

// MyCalendar godoc
// @Summary My calendar
// @Description Deadlines, group sessions and school events in a month, week or day view
// @Tags Calendar
// @Produce json
// @Param view query string false "month, week or day"
// @Param month query int false "Month (1-12)"
// @Param year query int false "Year"
// @Param day query int false "Day of month"
// @Param type query string false "Entry type filter"
// @Success 200 {object} response.Envelope
// @Router /calendar [get]
func (h *CalendarHandler) MyCalendar(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	q := models.CalendarQuery{View: c.DefaultQuery("view", "month"), Type: c.Query("type")}
	var ok bool
	if q.Month, ok = queryInt(c, "month"); !ok {
		return
	}
	if q.Year, ok = queryInt(c, "year"); !ok {
		return
	}
	if q.Day, ok = queryInt(c, "day"); !ok {
		return
	}
	view, err := h.service.MyCalendar(c.Request.Context(), q, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Upcoming godoc
// @Summary Upcoming deadlines
// @Tags Calendar
// @Produce json
// @Param limit query int false "Maximum entries"
// @Success 200 {object} response.Envelope
// @Router /calendar/upcoming [get]
func (h *CalendarHandler) Upcoming(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	items, err := h.service.Upcoming(c.Request.Context(), limit, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// ListEvents godoc
// @Summary List school events
// @Tags Calendar
// @Produce json
// @Param start_date query string false "Start date"
// @Param end_date query string false "End date"
// @Param audience query string false "Comma separated audiences (admin only)"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /calendar/events [get]
func (h *CalendarHandler) ListEvents(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	from, to, err := dateRange(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.CalendarFilter{StartDate: from, EndDate: to}
	filter.Page, filter.PageSize = pageParams(c)
	for _, raw := range strings.Split(c.Query("audience"), ",") {
		if raw = strings.TrimSpace(raw); raw != "" {
			filter.Audience = append(filter.Audience, models.EventAudience(raw))
		}
	}
	events, pagination, err := h.service.ListEvents(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, pagination)
}

// GetEvent godoc
// @Summary Get school event
// @Tags Calendar
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /calendar/events/{id} [get]
func (h *CalendarHandler) GetEvent(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	event, err := h.service.GetEvent(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// CreateEvent godoc
// @Summary Create school event
// @Tags Calendar
// @Accept json
// @Produce json
// @Param payload body models.CalendarEventRequest true "Event payload"
// @Success 201 {object} response.Envelope
// @Router /calendar/events [post]
func (h *CalendarHandler) CreateEvent(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req models.CalendarEventRequest
	if !bindJSON(c, &req, "invalid event payload") {
		return
	}
	event, err := h.service.CreateEvent(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// UpdateEvent godoc
// @Summary Update school event
// @Tags Calendar
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body models.CalendarEventRequest true "Event payload"
// @Success 200 {object} response.Envelope
// @Router /calendar/events/{id} [put]
func (h *CalendarHandler) UpdateEvent(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req models.CalendarEventRequest
	if !bindJSON(c, &req, "invalid event payload") {
		return
	}
	event, err := h.service.UpdateEvent(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// DeleteEvent godoc
// @Summary Delete school event
// @Tags Calendar
// @Param id path string true "Event ID"
// @Success 204 {object} response.Envelope
// @Router /calendar/events/{id} [delete]
func (h *CalendarHandler) DeleteEvent(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	if err := h.service.DeleteEvent(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// queryInt returns 0 for a missing parameter and writes 400 for a malformed one.
func queryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		response.Error(c, validationError("invalid "+key+" parameter"))
		return 0, false
	}
	return v, true
}
