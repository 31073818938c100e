package models

import (
	"time"

	"github.com/lib/pq"
)

// TransactionType splits the ledger into income and expenses.
type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

// TransactionStatus tracks whether a ledger row counts toward totals.
type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "completed"
	TransactionPending   TransactionStatus = "pending"
	TransactionCancelled TransactionStatus = "cancelled"
)

// Ledger categories.
const (
	CategoryStudentPayment  = "student_payment"
	CategoryEnrollmentFee   = "enrollment_fee"
	CategoryMaterialSale    = "material_sale"
	CategoryExamFee         = "exam_fee"
	CategoryOtherIncome     = "other_income"
	CategoryAssistantSalary = "assistant_salary"
	CategoryRent            = "rent"
	CategoryUtilities       = "utilities"
	CategoryMaterials       = "materials"
	CategoryMarketing       = "marketing"
	CategoryMaintenance     = "maintenance"
	CategoryTransportation  = "transportation"
	CategoryEquipment       = "equipment"
	CategorySoftware        = "software"
	CategoryOtherExpense    = "other_expense"
)

var transactionCategories = map[TransactionType][]string{
	TransactionIncome: {
		CategoryStudentPayment, CategoryEnrollmentFee, CategoryMaterialSale, CategoryExamFee, CategoryOtherIncome,
	},
	TransactionExpense: {
		CategoryAssistantSalary, CategoryRent, CategoryUtilities, CategoryMaterials, CategoryMarketing,
		CategoryMaintenance, CategoryTransportation, CategoryEquipment, CategorySoftware, CategoryOtherExpense,
	},
}

// CategoryMatchesType reports whether category belongs to the ledger side t.
func CategoryMatchesType(t TransactionType, category string) bool {
	for _, c := range transactionCategories[t] {
		if c == category {
			return true
		}
	}
	return false
}

// DefaultCurrency applies when neither the request nor the config names one.
const DefaultCurrency = "EGP"

// Related record kinds a transaction can point to.
const (
	RelatedStudentPayment = "StudentPayment"
	RelatedAttendance     = "Attendance"
	RelatedGroup          = "Group"
	RelatedCourse         = "Course"
)

// FinancialTransaction is one ledger row.
type FinancialTransaction struct {
	ID              string            `db:"id" json:"id"`
	Type            TransactionType   `db:"type" json:"type"`
	Category        string            `db:"category" json:"category"`
	TeacherID       string            `db:"teacher_id" json:"teacher_id"`
	RelatedModel    *string           `db:"related_model" json:"related_model,omitempty"`
	RelatedID       *string           `db:"related_id" json:"related_id,omitempty"`
	Amount          float64           `db:"amount" json:"amount"`
	Currency        string            `db:"currency" json:"currency"`
	Title           string            `db:"title" json:"title"`
	Description     string            `db:"description" json:"description,omitempty"`
	TransactionDate time.Time         `db:"transaction_date" json:"transaction_date"`
	PaymentMethod   string            `db:"payment_method" json:"payment_method"`
	ReceiptNumber   string            `db:"receipt_number" json:"receipt_number"`
	Status          TransactionStatus `db:"status" json:"status"`
	Notes           string            `db:"notes" json:"notes,omitempty"`
	Tags            pq.StringArray    `db:"tags" json:"tags"`
	CreatedBy       string            `db:"created_by" json:"created_by"`
	UpdatedBy       *string           `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

// IsAttendanceManaged reports whether the row is owned by attendance billing.
func (t *FinancialTransaction) IsAttendanceManaged() bool {
	return t.RelatedModel != nil && *t.RelatedModel == RelatedAttendance
}

// TransactionFilter narrows ledger listings.
type TransactionFilter struct {
	TeacherID string
	Type      TransactionType
	Category  string
	Status    TransactionStatus
	StartDate *time.Time
	EndDate   *time.Time
	Search    string
	Page      int
	PageSize  int
}

// TransactionRequest is the create/update payload for ledger rows.
type TransactionRequest struct {
	Type            TransactionType   `json:"type" validate:"required,oneof=income expense"`
	Category        string            `json:"category" validate:"required"`
	Amount          float64           `json:"amount" validate:"required,gt=0"`
	Currency        string            `json:"currency" validate:"omitempty,oneof=EGP USD EUR SAR AED"`
	Title           string            `json:"title" validate:"required,max=200"`
	Description     string            `json:"description" validate:"max=1000"`
	TransactionDate *time.Time        `json:"transaction_date"`
	PaymentMethod   string            `json:"payment_method" validate:"omitempty,oneof=cash bank_transfer credit_card mobile_wallet check other"`
	Status          TransactionStatus `json:"status" validate:"omitempty,oneof=completed pending cancelled"`
	Notes           string            `json:"notes" validate:"max=2000"`
	Tags            []string          `json:"tags" validate:"omitempty,max=20,dive,max=50"`
	TeacherID       string            `json:"teacher_id"`
}

// FinancialTotals is the headline of the financial summary.
type FinancialTotals struct {
	TotalIncome   float64 `json:"total_income"`
	TotalExpenses float64 `json:"total_expenses"`
	NetProfit     float64 `json:"net_profit"`
	ProfitMargin  float64 `json:"profit_margin"`
}

// CategoryTotal is one bucket of the category breakdown.
type CategoryTotal struct {
	Type     TransactionType `db:"type" json:"type"`
	Category string          `db:"category" json:"category"`
	Total    float64         `db:"total" json:"total"`
	Count    int             `db:"count" json:"count"`
}

// MonthlyTotal is one (year, month, type) bucket of the monthly trend.
type MonthlyTotal struct {
	Year  int             `db:"year" json:"year"`
	Month int             `db:"month" json:"month"`
	Type  TransactionType `db:"type" json:"type"`
	Total float64         `db:"total" json:"total"`
}

// Period is an inclusive reporting window.
type Period struct {
	Name      string    `json:"name,omitempty"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// FinancialSummary is the accounting dashboard payload.
type FinancialSummary struct {
	Summary           FinancialTotals `json:"summary"`
	CategoryBreakdown []CategoryTotal `json:"category_breakdown"`
	MonthlyTrend      []MonthlyTotal  `json:"monthly_trend"`
	PaymentStats      PaymentStats    `json:"payment_stats"`
	Period            Period          `json:"period"`
}

// ProfitAndLoss is the income statement for a period.
type ProfitAndLoss struct {
	Period        Period          `json:"period"`
	Income        []CategoryTotal `json:"income"`
	Expenses      []CategoryTotal `json:"expenses"`
	TotalIncome   float64         `json:"total_income"`
	TotalExpenses float64         `json:"total_expenses"`
	NetProfit     float64         `json:"net_profit"`
	ProfitMargin  float64         `json:"profit_margin"`
}
