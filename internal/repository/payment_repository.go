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

const paymentColumns = `p.id, p.student_id, p.course_id, p.group_id, p.teacher_id, p.academic_year, p.payment_type, p.sessions_attended,
p.price_per_session, p.total_amount, p.paid_amount, p.discount, p.remaining_amount, p.currency, p.status, p.due_date, p.paid_date,
p.payment_method, p.receipt_number, p.transaction_id, p.notes, p.created_at, p.updated_at`

const paymentSelect = `SELECT ` + paymentColumns + `, u.full_name AS student_name FROM student_payments p JOIN users u ON u.id = p.student_id`

// PaymentRepository persists student payments together with their ledger rows.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func paymentConditions(filter models.PaymentFilter) whereBuilder {
	var where whereBuilder
	if filter.TeacherID != "" {
		where.add("p.teacher_id = ?", filter.TeacherID)
	}
	if filter.StudentID != "" {
		where.add("p.student_id = ?", filter.StudentID)
	}
	if filter.CourseID != "" {
		where.add("p.course_id = ?", filter.CourseID)
	}
	if filter.GroupID != "" {
		where.add("p.group_id = ?", filter.GroupID)
	}
	if filter.Status != "" {
		where.add("p.status = ?", filter.Status)
	}
	if filter.PaymentType != "" {
		where.add("p.payment_type = ?", filter.PaymentType)
	}
	return where
}

// List returns payments matching filter.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.StudentPayment, int, error) {
	where := paymentConditions(filter)
	limit, offset := pageWindow(filter.Page, filter.PageSize)

	query := fmt.Sprintf("%s%s ORDER BY p.created_at DESC LIMIT %d OFFSET %d", paymentSelect, where.clause(), limit, offset)
	var items []models.StudentPayment
	if err := r.db.SelectContext(ctx, &items, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM student_payments p"+where.clause(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return items, total, nil
}

// FindByID returns a payment by id.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.StudentPayment, error) {
	var item models.StudentPayment
	if err := r.db.GetContext(ctx, &item, paymentSelect+" WHERE p.id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find payment: %w", err)
	}
	return &item, nil
}

// FindSessionPayment returns the latest session-based payment of a student in a group.
func (r *PaymentRepository) FindSessionPayment(ctx context.Context, groupID, studentID string) (*models.StudentPayment, error) {
	const where = ` WHERE p.group_id = $1 AND p.student_id = $2 AND p.payment_type = 'session_based' ORDER BY p.created_at DESC LIMIT 1`
	var item models.StudentPayment
	if err := r.db.GetContext(ctx, &item, paymentSelect+where, groupID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find session payment: %w", err)
	}
	return &item, nil
}

// Create inserts a payment. When ledger is non-nil the ledger row is recorded
// in the same transaction and linked through transaction_id.
func (r *PaymentRepository) Create(ctx context.Context, p *models.StudentPayment, ledger *models.FinancialTransaction) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create payment: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.ReceiptNumber == "" {
		receipt, err := nextYearlyReceipt(ctx, tx, "REC", now)
		if err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		p.ReceiptNumber = receipt
	}
	if ledger != nil {
		linkLedger(p, ledger)
		if err := insertTransaction(ctx, tx, ledger); err != nil {
			return err
		}
		p.TransactionID = &ledger.ID
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	const query = `INSERT INTO student_payments (id, student_id, course_id, group_id, teacher_id, academic_year, payment_type, sessions_attended,
price_per_session, total_amount, paid_amount, discount, remaining_amount, currency, status, due_date, paid_date, payment_method, receipt_number,
transaction_id, notes, created_at, updated_at)
VALUES (:id, :student_id, :course_id, :group_id, :teacher_id, :academic_year, :payment_type, :sessions_attended,
:price_per_session, :total_amount, :paid_amount, :discount, :remaining_amount, :currency, :status, :due_date, :paid_date, :payment_method, :receipt_number,
:transaction_id, :notes, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create payment: %w", err)
	}
	return nil
}

// Update stores a payment. A non-nil ledger row is inserted in the same transaction.
func (r *PaymentRepository) Update(ctx context.Context, p *models.StudentPayment, ledger *models.FinancialTransaction) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update payment: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if ledger != nil {
		linkLedger(p, ledger)
		if err := insertTransaction(ctx, tx, ledger); err != nil {
			return err
		}
		if p.TransactionID == nil {
			p.TransactionID = &ledger.ID
		}
	}
	p.UpdatedAt = time.Now().UTC()
	const query = `UPDATE student_payments SET academic_year = :academic_year, payment_type = :payment_type, sessions_attended = :sessions_attended,
price_per_session = :price_per_session, total_amount = :total_amount, paid_amount = :paid_amount, discount = :discount,
remaining_amount = :remaining_amount, currency = :currency, status = :status, due_date = :due_date, paid_date = :paid_date,
payment_method = :payment_method, transaction_id = :transaction_id, notes = :notes, updated_at = :updated_at WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update payment: %w", err)
	}
	return nil
}

func linkLedger(p *models.StudentPayment, ledger *models.FinancialTransaction) {
	model := models.RelatedStudentPayment
	id := p.ID
	ledger.RelatedModel = &model
	ledger.RelatedID = &id
}

// Stats aggregates receivables. An empty teacherID covers every teacher.
func (r *PaymentRepository) Stats(ctx context.Context, filter models.PaymentFilter) (models.PaymentStats, error) {
	where := paymentConditions(filter)
	query := `SELECT COALESCE(SUM(p.paid_amount), 0) AS total_revenue,
COALESCE(SUM(p.remaining_amount) FILTER (WHERE p.status IN ('pending', 'partial', 'overdue')), 0) AS total_pending,
COALESCE(SUM(p.remaining_amount) FILTER (WHERE p.status = 'overdue'), 0) AS total_overdue,
COUNT(DISTINCT p.student_id) AS total_students, COUNT(*) AS payment_count
FROM student_payments p` + where.clause()
	var stats models.PaymentStats
	if err := r.db.GetContext(ctx, &stats, query, where.args...); err != nil {
		return stats, fmt.Errorf("payment stats: %w", err)
	}
	return stats, nil
}

// GroupRevenue totals the payments of a group.
func (r *PaymentRepository) GroupRevenue(ctx context.Context, groupID string) (models.GroupRevenue, error) {
	const query = `SELECT $1::text AS group_id, COALESCE(SUM(total_amount), 0) AS total_billed, COALESCE(SUM(paid_amount), 0) AS total_paid,
COALESCE(SUM(discount), 0) AS total_discount,
COALESCE(SUM(remaining_amount) FILTER (WHERE status IN ('pending', 'partial', 'overdue')), 0) AS total_pending,
COUNT(*) AS payment_count, COUNT(DISTINCT student_id) AS student_count
FROM student_payments WHERE group_id = $1 AND status NOT IN ('cancelled', 'refunded')`
	var revenue models.GroupRevenue
	if err := r.db.GetContext(ctx, &revenue, query, groupID); err != nil {
		return revenue, fmt.Errorf("group revenue: %w", err)
	}
	return revenue, nil
}
