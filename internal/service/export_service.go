package service

import (
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/school-lms-api/internal/models"
	"github.com/noah-isme/school-lms-api/pkg/export"
	"github.com/noah-isme/school-lms-api/pkg/storage"
)

type gradebookSource interface {
	Gradebook(ctx context.Context, courseID, teacherID string) ([]models.GradebookRow, error)
}

type transactionLister interface {
	ListAll(ctx context.Context, filter models.TransactionFilter) ([]models.FinancialTransaction, error)
}

type attendanceLister interface {
	ListAll(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	Key       string
	Token     string
	URL       string
	Format    models.ReportFormat
	Rows      int
	ExpiresAt time.Time
}

// ExportService builds report datasets and persists rendered files.
type ExportService struct {
	gradebook    gradebookSource
	transactions transactionLister
	attendance   attendanceLister
	store        storage.Store
	renderers    *export.Registry
	signer       *storage.SignedURLSigner
	logger       *zap.Logger
	cfg          ExportConfig
	now          func() time.Time
}

// NewExportService constructs an ExportService. A nil registry renders with
// the built-in CSV, PDF and XLSX encoders.
func NewExportService(gradebook gradebookSource, transactions transactionLister, attendance attendanceLister, store storage.Store, signer *storage.SignedURLSigner, renderers *export.Registry, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if renderers == nil {
		renderers = export.NewRegistry()
	}
	return &ExportService{
		gradebook:    gradebook,
		transactions: transactions,
		attendance:   attendance,
		store:        store,
		renderers:    renderers,
		signer:       signer,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Generate builds dataset according to job definition and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}
	body, contentType, err := s.renderers.Render(export.Format(job.Params.Format), dataset)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", job.Params.Format, err)
	}

	key, err := s.store.Save(ctx, s.buildKey(job), body, contentType)
	if err != nil {
		return nil, fmt.Errorf("store export: %w", err)
	}
	token, expiresAt, err := s.signer.Generate(job.ID, key)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("export generated",
		zap.String("job_id", job.ID),
		zap.String("key", key),
		zap.Int("rows", len(dataset.Rows)),
		zap.Int("bytes", len(body)),
	)
	return &ExportResult{
		Key:       key,
		Token:     token,
		URL:       s.DownloadURL(token),
		Format:    job.Params.Format,
		Rows:      len(dataset.Rows),
		ExpiresAt: expiresAt,
	}, nil
}

// DownloadURL renders the public path serving token.
func (s *ExportService) DownloadURL(token string) string {
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return fmt.Sprintf("%s/export/%s", prefix, token)
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, key string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a reader over the stored file.
func (s *ExportService) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.store.Open(ctx, key)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(ctx context.Context, key string) error {
	return s.store.Delete(ctx, key)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ctx context.Context, ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.store.CleanupOlderThan(ctx, ttl)
}

func (s *ExportService) buildKey(job *models.ReportJob) string {
	scope := job.Params.CourseID
	if scope == "" {
		scope = job.Params.TeacherID
	}
	name := fmt.Sprintf("%s_%s_%s.%s", job.Type, sanitizeFilename(scope), s.now().UTC().Format("20060102_150405"), job.Params.Format)
	return path.Join(string(job.Type), job.ID, name)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "all"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, error) {
	switch job.Type {
	case models.ReportTypeGradebook:
		return s.buildGradebookDataset(ctx, job.Params)
	case models.ReportTypeTransactions:
		return s.buildTransactionDataset(ctx, job.Params)
	case models.ReportTypeAttendance:
		return s.buildAttendanceDataset(ctx, job.Params)
	default:
		return export.Dataset{}, fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildGradebookDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, error) {
	rows, err := s.gradebook.Gradebook(ctx, params.CourseID, params.TeacherID)
	if err != nil {
		return export.Dataset{}, err
	}
	data := export.Dataset{
		Title:   "Gradebook",
		Headers: []string{"Student", "Email", "Code", "Assignment", "Max Points", "Status", "Late", "Points", "Percentage", "Letter", "Submitted At", "Graded At"},
	}
	var sum float64
	var graded int
	for _, r := range rows {
		if params.StartDate != nil && r.SubmittedAt.Before(*params.StartDate) {
			continue
		}
		if params.EndDate != nil && r.SubmittedAt.After(*params.EndDate) {
			continue
		}
		if r.FinalPercentage != nil {
			sum += *r.FinalPercentage
			graded++
		}
		data.Rows = append(data.Rows, map[string]string{
			"Student":      r.StudentName,
			"Email":        r.StudentEmail,
			"Code":         r.AssignmentCode,
			"Assignment":   r.AssignmentTitle,
			"Max Points":   formatNumber(r.MaxPoints),
			"Status":       r.Status,
			"Late":         strconv.FormatBool(r.IsLate),
			"Points":       formatOptionalNumber(r.FinalPoints),
			"Percentage":   formatOptionalNumber(r.FinalPercentage),
			"Letter":       derefString(r.LetterGrade),
			"Submitted At": r.SubmittedAt.UTC().Format(time.RFC3339),
			"Graded At":    formatOptionalTime(r.GradedAt),
		})
	}
	if graded > 0 {
		data.Totals = map[string]string{"Student": "Average", "Percentage": formatNumber(round2(sum / float64(graded)))}
	}
	return data, nil
}

func (s *ExportService) buildTransactionDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, error) {
	items, err := s.transactions.ListAll(ctx, models.TransactionFilter{
		TeacherID: params.TeacherID,
		StartDate: params.StartDate,
		EndDate:   params.EndDate,
	})
	if err != nil {
		return export.Dataset{}, err
	}
	data := export.Dataset{
		Title:   "Transactions",
		Headers: []string{"Date", "Receipt", "Type", "Category", "Title", "Amount", "Currency", "Method", "Status"},
	}
	var income, expense float64
	for _, t := range items {
		if t.Status == models.TransactionCompleted {
			if t.Type == models.TransactionIncome {
				income += t.Amount
			} else {
				expense += t.Amount
			}
		}
		data.Rows = append(data.Rows, map[string]string{
			"Date":     t.TransactionDate.UTC().Format("2006-01-02"),
			"Receipt":  t.ReceiptNumber,
			"Type":     string(t.Type),
			"Category": t.Category,
			"Title":    t.Title,
			"Amount":   formatNumber(t.Amount),
			"Currency": t.Currency,
			"Method":   t.PaymentMethod,
			"Status":   string(t.Status),
		})
	}
	data.Totals = map[string]string{"Title": "Net (completed)", "Amount": formatNumber(round2(income - expense))}
	return data, nil
}

func (s *ExportService) buildAttendanceDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, error) {
	items, err := s.attendance.ListAll(ctx, models.AttendanceFilter{
		TeacherID: params.TeacherID,
		CourseID:  params.CourseID,
		GroupID:   params.GroupID,
		DateFrom:  params.StartDate,
		DateTo:    params.EndDate,
	})
	if err != nil {
		return export.Dataset{}, err
	}
	data := export.Dataset{
		Title:   "Attendance",
		Headers: []string{"Date", "Start", "End", "Student", "Status", "Minutes Late", "Excused", "Reason"},
	}
	for _, a := range items {
		student := a.StudentName
		if student == "" {
			student = a.StudentID
		}
		data.Rows = append(data.Rows, map[string]string{
			"Date":         a.ClassDate.UTC().Format("2006-01-02"),
			"Start":        a.ClassStartTime,
			"End":          a.ClassEndTime,
			"Student":      student,
			"Status":       string(a.Status),
			"Minutes Late": strconv.Itoa(a.MinutesLate),
			"Excused":      strconv.FormatBool(a.IsExcused),
			"Reason":       derefString(a.AbsenceReason),
		})
	}
	if len(items) > 0 {
		summary := SummarizeAttendance(items)
		data.Totals = map[string]string{"Date": "Attendance %", "Status": formatNumber(summary.AttendancePercentage)}
	}
	return data, nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptionalNumber(v *float64) string {
	if v == nil {
		return ""
	}
	return formatNumber(*v)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
