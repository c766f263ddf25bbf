package core

import (
	"maps"
	"time"

	"github.com/shopspring/decimal"
)

const (
	InvoicePending InvoiceStatus = "pending"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceOverdue InvoiceStatus = "overdue"

	TipDaily     TipType = "daily"
	TipWeekly    TipType = "weekly"
	TipChallenge TipType = "challenge"
)

type (
	InvoiceStatus string
	TipType       string

	User struct {
		ID           int64
		Username     string
		PasswordHash string
	}

	Category struct {
		ID     int64
		UserID int64
		Name   string
	}

	Invoice struct {
		ID           int64
		UserID       int64
		CustomerName string
		Description  string
		Amount       decimal.Decimal
		DueDate      time.Time
		Status       InvoiceStatus
		CreatedAt    time.Time
	}

	Expense struct {
		ID          int64
		UserID      int64
		Description string
		Amount      decimal.Decimal
		Category    string
		Date        time.Time
		CreatedAt   time.Time
	}

	Budget struct {
		ID       int64
		UserID   int64
		Category string
		Amount   decimal.Decimal
		Month    int // 1-12
		Year     int
	}

	Goal struct {
		ID            int64
		UserID        int64
		Name          string
		TargetAmount  decimal.Decimal
		CurrentAmount decimal.Decimal
		Deadline      time.Time
		Breakdown     map[string]decimal.Decimal
		CreatedAt     time.Time
	}

	Tip struct {
		ID      int64
		Type    TipType
		Message string
	}
)

// Create payloads. Identifiers, owners and creation timestamps are assigned by the store.
type (
	NewUser struct {
		Username     string `validate:"required,max=64"`
		PasswordHash string `validate:"required"`
	}

	NewCategory struct {
		Name string `validate:"required,max=100"`
	}

	NewInvoice struct {
		CustomerName string          `validate:"required,max=200"`
		Description  string          `validate:"required,max=1000"`
		Amount       decimal.Decimal `validate:"gt=0"`
		DueDate      time.Time       `validate:"required"`
		Status       InvoiceStatus   `validate:"required,oneof=pending paid overdue"`
	}

	NewExpense struct {
		Description string          `validate:"required,max=200"`
		Amount      decimal.Decimal `validate:"gt=0"`
		Category    string          `validate:"required,max=100"`
		Date        time.Time       `validate:"required"`
	}

	NewBudget struct {
		Category string          `validate:"required,max=100"`
		Amount   decimal.Decimal `validate:"gte=0"`
		Month    int             `validate:"min=1,max=12"`
		Year     int             `validate:"min=1970,max=9999"`
	}

	NewGoal struct {
		Name          string          `validate:"required,max=200"`
		TargetAmount  decimal.Decimal `validate:"gt=0"`
		CurrentAmount decimal.Decimal `validate:"gte=0"`
		Deadline      time.Time       `validate:"required"`
		Breakdown     map[string]decimal.Decimal
	}

	NewTip struct {
		Type    TipType `validate:"required,oneof=daily weekly challenge"`
		Message string  `validate:"required"`
	}

	// GoalPatch carries the fields to change on a goal. Nil fields are left untouched.
	GoalPatch struct {
		Name          *string
		TargetAmount  *decimal.Decimal
		CurrentAmount *decimal.Decimal
		Deadline      *time.Time
		Breakdown     map[string]decimal.Decimal
	}
)

// Clone returns a copy of g that shares no mutable state with it.
func (g Goal) Clone() Goal {
	if g.Breakdown != nil {
		g.Breakdown = maps.Clone(g.Breakdown)
	}
	return g
}

// Apply merges the non-nil fields of p into g.
func (p GoalPatch) Apply(g Goal) Goal {
	if p.Name != nil {
		g.Name = *p.Name
	}
	if p.TargetAmount != nil {
		g.TargetAmount = *p.TargetAmount
	}
	if p.CurrentAmount != nil {
		g.CurrentAmount = *p.CurrentAmount
	}
	if p.Deadline != nil {
		g.Deadline = *p.Deadline
	}
	if p.Breakdown != nil {
		g.Breakdown = maps.Clone(p.Breakdown)
	}
	return g
}

// IsEmpty reports whether the patch changes nothing.
func (p GoalPatch) IsEmpty() bool {
	return p.Name == nil && p.TargetAmount == nil && p.CurrentAmount == nil &&
		p.Deadline == nil && p.Breakdown == nil
}

// Validate checks the fields present in the patch.
func (p GoalPatch) Validate() error {
	var errs []FieldError
	if p.Name != nil && *p.Name == "" {
		errs = append(errs, FieldError{Field: "Name", Message: "must not be empty"})
	}
	if p.TargetAmount != nil && !p.TargetAmount.IsPositive() {
		errs = append(errs, FieldError{Field: "TargetAmount", Message: "must be greater than 0"})
	}
	if p.CurrentAmount != nil && p.CurrentAmount.IsNegative() {
		errs = append(errs, FieldError{Field: "CurrentAmount", Message: "must not be negative"})
	}
	if p.Deadline != nil && p.Deadline.IsZero() {
		errs = append(errs, FieldError{Field: "Deadline", Message: "is required"})
	}
	errs = append(errs, validateBreakdown(p.Breakdown)...)
	if len(errs) > 0 {
		return NewValidationErrors(errs)
	}
	return nil
}

func validateBreakdown(b map[string]decimal.Decimal) []FieldError {
	var errs []FieldError
	for label, amount := range b {
		if label == "" {
			errs = append(errs, FieldError{Field: "Breakdown", Message: "labels must not be empty"})
		}
		if amount.IsNegative() {
			errs = append(errs, FieldError{Field: "Breakdown[" + label + "]", Message: "must not be negative"})
		}
	}
	return errs
}
