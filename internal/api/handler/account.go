package handler

import (
	"net/http"
	"time"

	"github.com/ayo6706/wallet-transfer/internal/domain"
	"github.com/ayo6706/wallet-transfer/internal/models"
	"github.com/ayo6706/wallet-transfer/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountHandler struct {
	svc *service.AccountService
}

func NewAccountHandler(svc *service.AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

type accountResponse struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Balance   string    `json:"balance"`
	Currency  string    `json:"currency"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newAccountResponse(a *models.Account) accountResponse {
	return accountResponse{
		ID:        a.ID,
		OwnerID:   a.OwnerID,
		Balance:   domain.FormatAmount(a.Balance),
		Currency:  a.Currency,
		Version:   a.Version,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid account ID")
		return
	}

	account, err := h.svc.GetAccount(r.Context(), accountID)
	if err != nil {
		RespondDomainError(w, r, err, "account/read-failed")
		return
	}
	if !isAdmin && account.OwnerID != actorID {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}

	RespondJSON(w, http.StatusOK, newAccountResponse(account))
}

// CreateAccount opens an account. Callers open accounts for themselves;
// admins may name another owner.
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req struct {
		OwnerID  string `json:"owner_id"`
		Currency string `json:"currency"`
		Balance  string `json:"balance"`
	}
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	ownerID := actorID
	if req.OwnerID != "" {
		ownerID, err = uuid.Parse(req.OwnerID)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-owner-id", "Invalid owner_id")
			return
		}
	}
	if !isAdmin && ownerID != actorID {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}

	balance := decimal.Zero
	if req.Balance != "" {
		balance, err = domain.ParseAmount("balance", req.Balance)
		if err != nil {
			RespondDomainError(w, r, err, "account/create-failed")
			return
		}
	}

	account, err := h.svc.CreateAccount(r.Context(), ownerID, req.Currency, balance)
	if err != nil {
		RespondDomainError(w, r, err, "account/create-failed")
		return
	}

	RespondJSON(w, http.StatusCreated, newAccountResponse(account))
}
