// internal/core/domain/expense.go
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Expense represents a single recorded expense.
type Expense struct {
	ID          uuid.UUID       `json:"id"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	IncurredAt  time.Time       `json:"incurred_at"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewExpense creates an expense with a fresh ID and sane defaults.
func NewExpense(description, category string, amount decimal.Decimal) *Expense {
	if category == "" {
		category = "general"
	}
	now := time.Now()
	return &Expense{
		ID:          uuid.New(),
		Description: description,
		Category:    category,
		Amount:      amount,
		IncurredAt:  now,
		CreatedAt:   now,
	}
}

// Validate checks invariants enforced by the schema.
func (e *Expense) Validate() error {
	if e.Description == "" {
		return fmt.Errorf("description is required")
	}
	if e.Amount.IsNegative() {
		return fmt.Errorf("amount cannot be negative")
	}
	return nil
}

// ExpenseFromRow rebuilds an expense from a generic result row.
func ExpenseFromRow(row map[string]any) (*Expense, error) {
	e := &Expense{}

	switch id := row["id"].(type) {
	case [16]byte:
		e.ID = uuid.UUID(id)
	case string:
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid expense id: %w", err)
		}
		e.ID = parsed
	default:
		return nil, fmt.Errorf("unexpected id type %T", row["id"])
	}

	if v, ok := row["description"].(string); ok {
		e.Description = v
	}
	if v, ok := row["category"].(string); ok {
		e.Category = v
	}

	// NUMERIC columns come back from the driver as pgtype.Numeric.
	switch amount := row["amount"].(type) {
	case pgtype.Numeric:
		if amount.NaN || amount.InfinityModifier != pgtype.Finite {
			return nil, fmt.Errorf("non-finite amount")
		}
		if amount.Valid {
			e.Amount = decimal.NewFromBigInt(amount.Int, amount.Exp)
		}
	case string:
		parsed, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount: %w", err)
		}
		e.Amount = parsed
	case float64:
		e.Amount = decimal.NewFromFloat(amount)
	case nil:
	default:
		return nil, fmt.Errorf("unexpected amount type %T", row["amount"])
	}

	if v, ok := row["incurred_at"].(time.Time); ok {
		e.IncurredAt = v
	}
	if v, ok := row["created_at"].(time.Time); ok {
		e.CreatedAt = v
	}

	return e, nil
}
