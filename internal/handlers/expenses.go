// internal/handlers/expenses.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ammerola/pgsession/internal/core/domain"
	"github.com/ammerola/pgsession/internal/core/services"
)

// ExpenseHandler handles expense-related HTTP requests
type ExpenseHandler struct {
	storage *services.Storage
	logger  *slog.Logger
}

// NewExpenseHandler creates a new expense handler
func NewExpenseHandler(storage *services.Storage, logger *slog.Logger) *ExpenseHandler {
	return &ExpenseHandler{
		storage: storage,
		logger:  logger.With(slog.String("handler", "expenses")),
	}
}

// CreateExpense handles POST /api/v1/expenses
func (h *ExpenseHandler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	expense := req.ToDomain()
	if err := expense.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.storage.CreateReturning(ctx,
		`INSERT INTO expenses (id, description, category, amount, incurred_at)
		 VALUES (?, ?, ?, ?, ?)
		 RETURNING id`,
		"id",
		expense.ID, expense.Description, expense.Category, expense.Amount, expense.IncurredAt,
	)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to create expense",
			slog.String("error", err.Error()))
		h.respondError(w, http.StatusInternalServerError, "Failed to create expense")
		return
	}

	h.logger.InfoContext(ctx, "expense created",
		slog.Any("expense_id", id),
		slog.String("category", expense.Category))

	h.respondJSON(w, http.StatusCreated, expense)
}

// GetExpense handles GET /api/v1/expenses/{id}
func (h *ExpenseHandler) GetExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	idStr := r.PathValue("id")

	id, err := uuid.Parse(idStr)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid expense ID format")
		return
	}

	rows, err := h.storage.Get(ctx,
		"SELECT id, description, category, amount, incurred_at, created_at FROM expenses WHERE id = ?", id)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to get expense",
			slog.String("expense_id", idStr),
			slog.String("error", err.Error()))
		h.respondError(w, http.StatusInternalServerError, "Failed to retrieve expense")
		return
	}
	if len(rows) == 0 {
		h.respondError(w, http.StatusNotFound, "Expense not found")
		return
	}

	expense, err := domain.ExpenseFromRow(rows[0])
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to map expense row",
			slog.String("expense_id", idStr),
			slog.String("error", err.Error()))
		h.respondError(w, http.StatusInternalServerError, "Failed to retrieve expense")
		return
	}

	h.respondJSON(w, http.StatusOK, expense)
}

// ListExpenses handles GET /api/v1/expenses
func (h *ExpenseHandler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	builder := sq.Select("id", "description", "category", "amount", "incurred_at", "created_at").
		From("expenses").
		OrderBy("incurred_at DESC")

	if category := r.URL.Query().Get("category"); category != "" {
		builder = builder.Where(sq.Eq{"category": category})
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	builder = builder.Limit(uint64(limit))

	query, args, err := builder.ToSql()
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to build expense query",
			slog.String("error", err.Error()))
		h.respondError(w, http.StatusInternalServerError, "Failed to list expenses")
		return
	}

	rows, err := h.storage.Get(ctx, query, args...)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list expenses",
			slog.String("error", err.Error()))
		h.respondError(w, http.StatusInternalServerError, "Failed to list expenses")
		return
	}

	expenses := make([]*domain.Expense, 0, len(rows))
	for _, row := range rows {
		expense, err := domain.ExpenseFromRow(row)
		if err != nil {
			h.logger.ErrorContext(ctx, "failed to map expense row",
				slog.String("error", err.Error()))
			h.respondError(w, http.StatusInternalServerError, "Failed to list expenses")
			return
		}
		expenses = append(expenses, expense)
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"expenses": expenses,
		"count":    len(expenses),
	})
}

// UpdateExpense handles PUT /api/v1/expenses/{id}
func (h *ExpenseHandler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	idStr := r.PathValue("id")

	id, err := uuid.Parse(idStr)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid expense ID format")
		return
	}

	var req UpdateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = h.storage.Update(ctx,
		"UPDATE expenses SET description = ?, category = ?, amount = ? WHERE id = ?",
		req.Description, req.Category, req.Amount, id)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to update expense",
			slog.String("expense_id", idStr),
			slog.String("error", err.Error()))
		h.respondError(w, http.StatusInternalServerError, "Failed to update expense")
		return
	}

	h.logger.InfoContext(ctx, "expense updated", slog.String("expense_id", idStr))
	h.respondJSON(w, http.StatusOK, map[string]string{"message": "Expense updated successfully"})
}

// DeleteExpense handles DELETE /api/v1/expenses/{id}
func (h *ExpenseHandler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	idStr := r.PathValue("id")

	id, err := uuid.Parse(idStr)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid expense ID format")
		return
	}

	if err := h.storage.Delete(ctx, "DELETE FROM expenses WHERE id = ?", id); err != nil {
		h.logger.ErrorContext(ctx, "failed to delete expense",
			slog.String("expense_id", idStr),
			slog.String("error", err.Error()))
		h.respondError(w, http.StatusInternalServerError, "Failed to delete expense")
		return
	}

	h.logger.InfoContext(ctx, "expense deleted", slog.String("expense_id", idStr))
	h.respondJSON(w, http.StatusOK, map[string]string{"message": "Expense deleted successfully"})
}

// TotalByCategory handles GET /api/v1/expenses/total
func (h *ExpenseHandler) TotalByCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	category := r.URL.Query().Get("category")
	if category == "" {
		h.respondError(w, http.StatusBadRequest, "category query parameter is required")
		return
	}

	total, err := h.storage.GetField(ctx,
		"SELECT COALESCE(SUM(amount), 0)::text AS total FROM expenses WHERE category = ?",
		"total", category)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			h.respondJSON(w, http.StatusOK, map[string]any{"category": category, "total": "0"})
			return
		}
		h.logger.ErrorContext(ctx, "failed to total expenses",
			slog.String("category", category),
			slog.String("error", err.Error()))
		h.respondError(w, http.StatusInternalServerError, "Failed to total expenses")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"category": category,
		"total":    total,
	})
}

// Helper methods

func (h *ExpenseHandler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response",
			slog.String("error", err.Error()))
	}
}

func (h *ExpenseHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// Request DTOs

// CreateExpenseRequest represents the request body for creating an expense
type CreateExpenseRequest struct {
	Description string          `json:"description"`
	Category    string          `json:"category,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	IncurredAt  *time.Time      `json:"incurred_at,omitempty"`
}

// ToDomain converts the request to a domain expense
func (r *CreateExpenseRequest) ToDomain() *domain.Expense {
	expense := domain.NewExpense(r.Description, r.Category, r.Amount)
	if r.IncurredAt != nil {
		expense.IncurredAt = *r.IncurredAt
	}
	return expense
}

// UpdateExpenseRequest represents the request body for updating an expense
type UpdateExpenseRequest struct {
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
}

// Validate validates the update request
func (r *UpdateExpenseRequest) Validate() error {
	if r.Description == "" {
		return fmt.Errorf("description is required")
	}
	if r.Amount.IsNegative() {
		return fmt.Errorf("amount cannot be negative")
	}
	return nil
}
