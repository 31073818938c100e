package models

import (
	"math"
	"time"
)

// PaymentStatus tracks how much of a payment has been settled.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentPartial   PaymentStatus = "partial"
	PaymentOverdue   PaymentStatus = "overdue"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentRefunded  PaymentStatus = "refunded"
)

// PaymentType describes what a payment is for.
type PaymentType string

const (
	PaymentEnrollment   PaymentType = "enrollment"
	PaymentMonthly      PaymentType = "monthly"
	PaymentInstallment  PaymentType = "installment"
	PaymentMaterial     PaymentType = "material"
	PaymentExam         PaymentType = "exam"
	PaymentSessionBased PaymentType = "session_based"
	PaymentOther        PaymentType = "other"
)

// StudentPayment is money owed by a student for a course or group.
type StudentPayment struct {
	ID               string        `db:"id" json:"id"`
	StudentID        string        `db:"student_id" json:"student_id"`
	CourseID         string        `db:"course_id" json:"course_id"`
	GroupID          *string       `db:"group_id" json:"group_id,omitempty"`
	TeacherID        string        `db:"teacher_id" json:"teacher_id"`
	AcademicYear     string        `db:"academic_year" json:"academic_year,omitempty"`
	PaymentType      PaymentType   `db:"payment_type" json:"payment_type"`
	SessionsAttended int           `db:"sessions_attended" json:"sessions_attended"`
	PricePerSession  float64       `db:"price_per_session" json:"price_per_session"`
	TotalAmount      float64       `db:"total_amount" json:"total_amount"`
	PaidAmount       float64       `db:"paid_amount" json:"paid_amount"`
	Discount         float64       `db:"discount" json:"discount"`
	RemainingAmount  float64       `db:"remaining_amount" json:"remaining_amount"`
	Currency         string        `db:"currency" json:"currency"`
	Status           PaymentStatus `db:"status" json:"status"`
	DueDate          *time.Time    `db:"due_date" json:"due_date,omitempty"`
	PaidDate         *time.Time    `db:"paid_date" json:"paid_date,omitempty"`
	PaymentMethod    string        `db:"payment_method" json:"payment_method"`
	ReceiptNumber    string        `db:"receipt_number" json:"receipt_number"`
	TransactionID    *string       `db:"transaction_id" json:"transaction_id,omitempty"`
	Notes            string        `db:"notes" json:"notes,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`

	StudentName string `db:"student_name" json:"student_name,omitempty"`
}

// ApplyStatus recomputes the remaining amount and derives the status from
// the amounts before the payment is persisted. Cancelled and refunded
// payments keep their status.
func (p *StudentPayment) ApplyStatus(now time.Time) {
	due := p.TotalAmount - p.Discount
	p.RemainingAmount = math.Max(0, due-p.PaidAmount)
	if p.Status == PaymentCancelled || p.Status == PaymentRefunded {
		return
	}
	switch {
	case p.PaidAmount >= due:
		p.Status = PaymentPaid
		if p.PaidDate == nil {
			paid := now
			p.PaidDate = &paid
		}
	case p.PaidAmount > 0:
		p.Status = PaymentPartial
	case p.DueDate != nil && p.DueDate.Before(now) && (p.Status == PaymentPending || p.Status == ""):
		p.Status = PaymentOverdue
	case p.Status == "":
		p.Status = PaymentPending
	}
}

// Progress is the percentage of the amount due that has been paid.
func (p *StudentPayment) Progress() float64 {
	due := p.TotalAmount - p.Discount
	if p.TotalAmount == 0 || due <= 0 {
		return 100
	}
	return math.Round(p.PaidAmount / due * 100)
}

// PaymentFilter narrows payment listings.
type PaymentFilter struct {
	TeacherID   string
	StudentID   string
	CourseID    string
	GroupID     string
	Status      PaymentStatus
	PaymentType PaymentType
	Page        int
	PageSize    int
}

// PaymentRequest is the create/update payload for student payments.
type PaymentRequest struct {
	StudentID        string        `json:"student_id" validate:"required"`
	CourseID         string        `json:"course_id" validate:"required"`
	GroupID          string        `json:"group_id"`
	AcademicYear     string        `json:"academic_year" validate:"max=20"`
	PaymentType      PaymentType   `json:"payment_type" validate:"omitempty,oneof=enrollment monthly installment material exam session_based other"`
	SessionsAttended int           `json:"sessions_attended" validate:"gte=0"`
	PricePerSession  float64       `json:"price_per_session" validate:"gte=0"`
	TotalAmount      float64       `json:"total_amount" validate:"gte=0"`
	PaidAmount       float64       `json:"paid_amount" validate:"gte=0"`
	Discount         float64       `json:"discount" validate:"gte=0"`
	Currency         string        `json:"currency" validate:"omitempty,oneof=EGP USD EUR SAR AED"`
	Status           PaymentStatus `json:"status" validate:"omitempty,oneof=pending paid partial overdue cancelled refunded"`
	DueDate          *time.Time    `json:"due_date"`
	PaymentMethod    string        `json:"payment_method" validate:"omitempty,oneof=cash bank_transfer credit_card mobile_wallet check other"`
	Notes            string        `json:"notes" validate:"max=1000"`
	TeacherID        string        `json:"teacher_id"`
}

// PaymentView adds derived fields to a payment.
type PaymentView struct {
	StudentPayment
	PaymentProgress float64 `json:"payment_progress"`
}

// NewPaymentView decorates p with its progress.
func NewPaymentView(p StudentPayment) PaymentView {
	return PaymentView{StudentPayment: p, PaymentProgress: p.Progress()}
}

// PaymentStats summarises a teacher's receivables.
type PaymentStats struct {
	TotalRevenue  float64 `db:"total_revenue" json:"total_revenue"`
	TotalPending  float64 `db:"total_pending" json:"total_pending"`
	TotalOverdue  float64 `db:"total_overdue" json:"total_overdue"`
	TotalStudents int     `db:"total_students" json:"total_students"`
	PaymentCount  int     `db:"payment_count" json:"payment_count"`
}

// SessionCharge is the attendance-based amount owed by one student.
type SessionCharge struct {
	StudentID        string          `db:"student_id" json:"student_id"`
	StudentName      string          `db:"student_name" json:"student_name"`
	SessionsAttended int             `db:"sessions_attended" json:"sessions_attended"`
	PricePerSession  float64         `json:"price_per_session"`
	TotalAmount      float64         `json:"total_amount"`
	ExistingPayment  *StudentPayment `json:"existing_payment,omitempty"`
}

// SessionBillingRequest generates session-based payments for a group.
type SessionBillingRequest struct {
	GroupID        string     `json:"group_id" validate:"required"`
	StartDate      time.Time  `json:"start_date" validate:"required"`
	EndDate        time.Time  `json:"end_date" validate:"required,gtfield=StartDate"`
	DueDate        *time.Time `json:"due_date"`
	UpdateExisting bool       `json:"update_existing"`
}

// SessionBillingResult reports generated payments.
type SessionBillingResult struct {
	GroupID string           `json:"group_id"`
	Created int              `json:"created"`
	Updated int              `json:"updated"`
	Skipped int              `json:"skipped"`
	Period  Period           `json:"period"`
	Items   []StudentPayment `json:"items"`
}

// GroupRevenue totals a group's payments.
type GroupRevenue struct {
	GroupID       string  `db:"group_id" json:"group_id"`
	TotalBilled   float64 `db:"total_billed" json:"total_billed"`
	TotalPaid     float64 `db:"total_paid" json:"total_paid"`
	TotalDiscount float64 `db:"total_discount" json:"total_discount"`
	TotalPending  float64 `db:"total_pending" json:"total_pending"`
	PaymentCount  int     `db:"payment_count" json:"payment_count"`
	StudentCount  int     `db:"student_count" json:"student_count"`
}
