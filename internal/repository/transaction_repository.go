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

	"github.com/noah-isme/school-lms-api/internal/models"
)

const transactionColumns = `id, type, category, teacher_id, related_model, related_id, amount, currency, title, description, transaction_date,
payment_method, receipt_number, status, notes, tags, created_by, updated_by, created_at, updated_at`

// TransactionRepository persists the income/expense ledger.
type TransactionRepository struct {
	db *sqlx.DB
}

// NewTransactionRepository constructs the repository.
func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func transactionConditions(filter models.TransactionFilter) whereBuilder {
	var where whereBuilder
	if filter.TeacherID != "" {
		where.add("teacher_id = ?", filter.TeacherID)
	}
	if filter.Type != "" {
		where.add("type = ?", filter.Type)
	}
	if filter.Category != "" {
		where.add("category = ?", filter.Category)
	}
	if filter.Status != "" {
		where.add("status = ?", filter.Status)
	}
	if filter.StartDate != nil {
		where.add("transaction_date >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		where.add("transaction_date <= ?", *filter.EndDate)
	}
	if filter.Search != "" {
		where.add("(LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(receipt_number) LIKE ?)", "%"+strings.ToLower(filter.Search)+"%")
	}
	return where
}

// List returns ledger rows matching filter, newest first.
func (r *TransactionRepository) List(ctx context.Context, filter models.TransactionFilter) ([]models.FinancialTransaction, int, error) {
	where := transactionConditions(filter)
	base := "FROM financial_transactions" + where.clause()
	limit, offset := pageWindow(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s %s ORDER BY transaction_date DESC LIMIT %d OFFSET %d", transactionColumns, base, limit, offset)
	var items []models.FinancialTransaction
	if err := r.db.SelectContext(ctx, &items, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, where.args...); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}
	return items, total, nil
}

// ListAll returns every ledger row matching filter, oldest first.
func (r *TransactionRepository) ListAll(ctx context.Context, filter models.TransactionFilter) ([]models.FinancialTransaction, error) {
	where := transactionConditions(filter)
	query := "SELECT " + transactionColumns + " FROM financial_transactions" + where.clause() + " ORDER BY transaction_date ASC"
	var items []models.FinancialTransaction
	if err := r.db.SelectContext(ctx, &items, query, where.args...); err != nil {
		return nil, fmt.Errorf("list all transactions: %w", err)
	}
	return items, nil
}

// FindByID returns a ledger row by id.
func (r *TransactionRepository) FindByID(ctx context.Context, id string) (*models.FinancialTransaction, error) {
	var item models.FinancialTransaction
	if err := r.db.GetContext(ctx, &item, "SELECT "+transactionColumns+" FROM financial_transactions WHERE id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	return &item, nil
}

// Create assigns a receipt number and inserts the row.
func (r *TransactionRepository) Create(ctx context.Context, item *models.FinancialTransaction) error {
	return insertTransaction(ctx, r.db, item)
}

func insertTransaction(ctx context.Context, exec sqlx.ExtContext, item *models.FinancialTransaction) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if item.ReceiptNumber == "" {
		receipt, err := nextYearlyReceipt(ctx, exec, "TRX", now)
		if err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		item.ReceiptNumber = receipt
	}
	if item.TransactionDate.IsZero() {
		item.TransactionDate = now
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}
	item.CreatedAt = now
	item.UpdatedAt = now
	const query = `INSERT INTO financial_transactions (id, type, category, teacher_id, related_model, related_id, amount, currency, title, description,
transaction_date, payment_method, receipt_number, status, notes, tags, created_by, updated_by, created_at, updated_at)
VALUES (:id, :type, :category, :teacher_id, :related_model, :related_id, :amount, :currency, :title, :description,
:transaction_date, :payment_method, :receipt_number, :status, :notes, :tags, :created_by, :updated_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, item); err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

// Update stores the mutable fields of a ledger row.
func (r *TransactionRepository) Update(ctx context.Context, item *models.FinancialTransaction) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE financial_transactions SET type = :type, category = :category, amount = :amount, currency = :currency, title = :title,
description = :description, transaction_date = :transaction_date, payment_method = :payment_method, status = :status, notes = :notes, tags = :tags,
updated_by = :updated_by, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return nil
}

// Delete removes a ledger row.
func (r *TransactionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM financial_transactions WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return nil
}

// CategoryTotals sums completed rows per (type, category) inside [from, to],
// largest first. An empty teacherID covers every teacher.
func (r *TransactionRepository) CategoryTotals(ctx context.Context, teacherID string, from, to time.Time) ([]models.CategoryTotal, error) {
	var where whereBuilder
	where.addRaw("status = 'completed'")
	if teacherID != "" {
		where.add("teacher_id = ?", teacherID)
	}
	where.add("transaction_date >= ?", from)
	where.add("transaction_date <= ?", to)
	query := "SELECT type, category, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count FROM financial_transactions" +
		where.clause() + " GROUP BY type, category ORDER BY total DESC"
	var rows []models.CategoryTotal
	if err := r.db.SelectContext(ctx, &rows, query, where.args...); err != nil {
		return nil, fmt.Errorf("transaction category totals: %w", err)
	}
	return rows, nil
}

// MonthlyTotals sums completed rows per (year, month, type) since from.
func (r *TransactionRepository) MonthlyTotals(ctx context.Context, teacherID string, from time.Time) ([]models.MonthlyTotal, error) {
	var where whereBuilder
	where.addRaw("status = 'completed'")
	if teacherID != "" {
		where.add("teacher_id = ?", teacherID)
	}
	where.add("transaction_date >= ?", from)
	query := `SELECT EXTRACT(YEAR FROM transaction_date)::int AS year, EXTRACT(MONTH FROM transaction_date)::int AS month, type,
COALESCE(SUM(amount), 0) AS total FROM financial_transactions` + where.clause() + " GROUP BY 1, 2, type ORDER BY 1, 2"
	var rows []models.MonthlyTotal
	if err := r.db.SelectContext(ctx, &rows, query, where.args...); err != nil {
		return nil, fmt.Errorf("transaction monthly totals: %w", err)
	}
	return rows, nil
}
