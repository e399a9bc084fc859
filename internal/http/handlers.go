package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"budgetledger/internal/budget"
	"budgetledger/internal/core"
)

// limitView is one row of GET /api/limits.
type limitView struct {
	Category      string          `json:"category"`
	MonthlyLimit  decimal.Decimal `json:"monthlyLimit"`
	WarnThreshold decimal.Decimal `json:"warnThreshold"`
	Evaluated     bool            `json:"evaluated"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := ParseCreateRequest(NewRequestBodyParser(r))
	if err != nil {
		FromError(r, err).Write(w)
		return
	}

	res, err := s.transactions.Create(r.Context(), tx)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}

	NewJSONResponse().
		Status(http.StatusCreated).
		Message("transaction recorded").
		Set("transaction", res.Transaction).
		Set("budgetAlert", res.BudgetAlert).
		Set("budgetAlertMessage", res.BudgetAlertMessage).
		Set("warningAlert", res.WarningAlert).
		Set("warningAlertMessage", res.WarningAlertMessage).
		Write(w)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	ownerID, filter, err := ParseListQuery(r.URL.Query())
	if err != nil {
		FromError(r, err).Write(w)
		return
	}

	txs, err := s.transactions.List(r.Context(), ownerID, filter)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}

	NewJSONResponse().
		Set("transactions", txs).
		Set("count", len(txs)).
		Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	patch, err := ParseUpdateRequest(NewRequestBodyParser(r))
	if err != nil {
		FromError(r, err).Write(w)
		return
	}

	tx, err := s.transactions.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}

	NewJSONResponse().
		Message("transaction updated").
		Set("transaction", tx).
		Write(w)
}

// handleDeleteTransaction reads ownerId from the query string, falling back
// to the body.
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	ownerID := sanitizeInput(r.URL.Query().Get("ownerId"))
	if ownerID == "" {
		p := NewRequestBodyParser(r)
		if err := p.Parse(); err != nil {
			FromError(r, err).Write(w)
			return
		}
		ownerID = p.Get("ownerId", "userId")
	}

	if err := s.transactions.Delete(r.Context(), ownerID, r.PathValue("id")); err != nil {
		FromError(r, err).Write(w)
		return
	}

	NewJSONResponse().Message("transaction deleted").Write(w)
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	entries := s.limits.Entries()
	views := make([]limitView, 0, len(entries))
	for _, e := range entries {
		views = append(views, limitView{
			Category:      e.Category,
			MonthlyLimit:  e.MonthlyLimit,
			WarnThreshold: budget.WarnThreshold(e.MonthlyLimit),
			Evaluated:     e.MonthlyLimit.IsPositive(),
		})
	}

	NewJSONResponse().
		Set("currency", s.currency).
		Set("limits", views).
		Write(w)
}
