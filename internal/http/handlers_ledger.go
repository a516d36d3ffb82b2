package http

import (
	"net/http"
	"time"

	"hearth/internal/core"
	"hearth/internal/ledger"
	applog "hearth/internal/log"
	"hearth/internal/payments"
)

type expenseDTO struct {
	ID          string    `json:"id"`
	GroupID     string    `json:"group_id"`
	Description string    `json:"description"`
	AmountCents int64     `json:"amount_cents"`
	PaidBy      string    `json:"paid_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type splitDTO struct {
	ID          string `json:"id"`
	ExpenseID   string `json:"expense_id"`
	UserID      string `json:"user_id"`
	AmountCents int64  `json:"amount_cents"`
	IsSettled   bool   `json:"is_settled"`
}

type debtDTO struct {
	Split   splitDTO   `json:"split"`
	Expense expenseDTO `json:"expense"`
}

func toExpenseDTO(e core.Expense) expenseDTO {
	return expenseDTO{
		ID: e.ID, GroupID: e.GroupID, Description: e.Description,
		AmountCents: e.Amount.Cents, PaidBy: e.PaidBy, CreatedAt: e.CreatedAt,
	}
}

func toSplitDTO(sp core.Split) splitDTO {
	return splitDTO{
		ID: sp.ID, ExpenseID: sp.ExpenseID, UserID: sp.UserID,
		AmountCents: sp.Amount.Cents, IsSettled: sp.IsSettled,
	}
}

func toDebtDTOs(debts []ledger.Debt) []debtDTO {
	out := make([]debtDTO, 0, len(debts))
	for _, d := range debts {
		out = append(out, debtDTO{Split: toSplitDTO(d.Split), Expense: toExpenseDTO(d.Expense)})
	}
	return out
}

// handleRecordExpense records an expense and its even splits. Amounts arrive
// as a decimal string ("42.50") and are stored as cents.
func (s *Server) handleRecordExpense(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description string `json:"description"`
		Amount      string `json:"amount"`
		PaidBy      string `json:"paid_by"`
	}
	if err := decodeJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, core.ErrInvalidAmount.Error())
		return
	}

	groupID := r.PathValue("id")
	description := sanitizeInput(req.Description)

	// Validate up front so a failed RecordExpense always means a store error.
	candidate := core.Expense{
		GroupID:     groupID,
		Description: description,
		Amount:      core.Money{Cents: cents},
		PaidBy:      req.PaidBy,
	}
	if err := candidate.Validate(); err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	expense, splits, err := s.ledger.RecordExpense(r.Context(),
		groupID, req.PaidBy, description, core.Money{Cents: cents})
	if err != nil {
		if expense.ID == "" {
			writeError(w, err)
			return
		}
		// Partial success: the expense stands, some splits are missing.
		// The poller will not repair this; surface it but return the rows.
		reqLog(r.Context()).ErrorContext(r.Context(), "Expense recorded with incomplete splits",
			applog.FieldExpenseID, expense.ID, "splits", len(splits), applog.FieldError, err)
	}

	resp := struct {
		Expense expenseDTO `json:"expense"`
		Splits  []splitDTO `json:"splits"`
	}{Expense: toExpenseDTO(expense)}
	for _, sp := range splits {
		resp.Splits = append(resp.Splits, toSplitDTO(sp))
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.ledger.RecentExpenses(r.Context(), r.PathValue("id"), parseLimit(r, 50))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]expenseDTO, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, toExpenseDTO(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleYouOwe(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		errorJSON(w, http.StatusBadRequest, "user_id is required")
		return
	}
	debts, err := s.ledger.YouOwe(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDebtDTOs(debts))
}

func (s *Server) handleOwedToYou(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		errorJSON(w, http.StatusBadRequest, "user_id is required")
		return
	}
	debts, err := s.ledger.OwedToYou(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDebtDTOs(debts))
}

// handleBalance returns both running totals for the settle-up screen.
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		errorJSON(w, http.StatusBadRequest, "user_id is required")
		return
	}

	owed, err := s.ledger.TotalOwed(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	owedToYou, err := s.ledger.TotalOwedToYou(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		YouOweCents    int64 `json:"you_owe_cents"`
		OwedToYouCents int64 `json:"owed_to_you_cents"`
		NetCents       int64 `json:"net_cents"`
	}{
		YouOweCents:    owed.Cents,
		OwedToYouCents: owedToYou.Cents,
		NetCents:       owedToYou.Cents - owed.Cents,
	})
}

func (s *Server) handleSettleSplit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.ledger.Settle(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	reqLog(r.Context()).InfoContext(r.Context(), "Split settled", applog.FieldSplitID, id)
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "settled"})
}

// handleCreatePaymentSession opens an embedded checkout session for paying a
// debt back. The split stays unsettled until the creditor confirms.
func (s *Server) handleCreatePaymentSession(w http.ResponseWriter, r *http.Request) {
	if s.payments == nil {
		errorJSON(w, http.StatusServiceUnavailable, "payments not configured")
		return
	}

	var req struct {
		SplitID       string `json:"split_id"`
		PayerName     string `json:"payer_name"`
		RecipientName string `json:"recipient_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sp, err := s.store.GetSplit(r.Context(), req.SplitID)
	if err != nil {
		writeError(w, err)
		return
	}
	expense, err := s.store.GetExpense(r.Context(), sp.ExpenseID)
	if err != nil {
		writeError(w, err)
		return
	}

	session, err := s.payments.CreateSession(r.Context(), payments.SessionRequest{
		Amount:        sp.Amount,
		Description:   expense.Description,
		PayerName:     sanitizeInput(req.PayerName),
		RecipientName: sanitizeInput(req.RecipientName),
	})
	if err != nil {
		reqLog(r.Context()).ErrorContext(r.Context(), "Payment session creation failed",
			applog.FieldSplitID, sp.ID, applog.FieldError, err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		SessionID    string `json:"session_id"`
		ClientSecret string `json:"client_secret"`
	}{SessionID: session.ID, ClientSecret: session.ClientSecret})
}
