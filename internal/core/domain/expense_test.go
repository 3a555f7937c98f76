// internal/core/domain/expense_test.go
package domain_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/pgsession/internal/core/domain"
)

func TestExpenseFromRow_DriverValueShapes(t *testing.T) {
	// UUID, NUMERIC and TIMESTAMPTZ columns decode into [16]byte,
	// pgtype.Numeric and time.Time respectively.
	id := uuid.New()
	incurred := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	created := time.Date(2026, 8, 1, 9, 31, 0, 0, time.UTC)

	row := map[string]any{
		"id":          [16]byte(id),
		"description": "office chair",
		"category":    "furniture",
		"amount":      pgtype.Numeric{Int: big.NewInt(350), Exp: -2, Valid: true},
		"incurred_at": incurred,
		"created_at":  created,
	}

	expense, err := domain.ExpenseFromRow(row)
	require.NoError(t, err)
	assert.Equal(t, id, expense.ID)
	assert.Equal(t, "office chair", expense.Description)
	assert.Equal(t, "furniture", expense.Category)
	assert.Equal(t, "3.5", expense.Amount.String())
	assert.Equal(t, incurred, expense.IncurredAt)
	assert.Equal(t, created, expense.CreatedAt)
}

func TestExpenseFromRow_Amount(t *testing.T) {
	tests := []struct {
		name     string
		amount   any
		expected string
		wantErr  bool
	}{
		{
			name:     "numeric_with_scale",
			amount:   pgtype.Numeric{Int: big.NewInt(12999), Exp: -2, Valid: true},
			expected: "129.99",
		},
		{
			name:     "numeric_whole_number",
			amount:   pgtype.Numeric{Int: big.NewInt(42), Exp: 0, Valid: true},
			expected: "42",
		},
		{
			name:     "null_numeric_defaults_to_zero",
			amount:   pgtype.Numeric{},
			expected: "0",
		},
		{
			name:    "nan_numeric_rejected",
			amount:  pgtype.Numeric{NaN: true, Valid: true},
			wantErr: true,
		},
		{
			name:    "infinite_numeric_rejected",
			amount:  pgtype.Numeric{InfinityModifier: pgtype.Infinity, Valid: true},
			wantErr: true,
		},
		{
			name:     "text_amount",
			amount:   "3.50",
			expected: "3.5",
		},
		{
			name:    "unsupported_amount_type",
			amount:  []byte("3.50"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := map[string]any{
				"id":          uuid.New().String(),
				"description": "coffee",
				"amount":      tt.amount,
			}

			expense, err := domain.ExpenseFromRow(row)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, expense.Amount.String())
		})
	}
}

func TestExpenseFromRow_RejectsUnknownIDType(t *testing.T) {
	_, err := domain.ExpenseFromRow(map[string]any{"id": 7})
	assert.Error(t, err)
}
