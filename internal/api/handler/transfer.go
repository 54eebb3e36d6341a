package handler

import (
	"net/http"
	"time"

	"github.com/ayo6706/wallet-transfer/internal/domain"
	"github.com/ayo6706/wallet-transfer/internal/engine"
	"github.com/ayo6706/wallet-transfer/internal/models"
	"github.com/ayo6706/wallet-transfer/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type TransferHandler struct {
	svc             *service.TransferService
	accounts        *service.AccountService
	defaultStrategy domain.Strategy
}

func NewTransferHandler(svc *service.TransferService, accounts *service.AccountService, defaultStrategy domain.Strategy) *TransferHandler {
	return &TransferHandler{svc: svc, accounts: accounts, defaultStrategy: defaultStrategy}
}

type transferResponse struct {
	ID                uuid.UUID `json:"id"`
	SenderAccountID   uuid.UUID `json:"sender_account_id"`
	ReceiverAccountID uuid.UUID `json:"receiver_account_id"`
	Amount            string    `json:"amount"`
	Currency          string    `json:"currency"`
	Strategy          string    `json:"strategy"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

func newTransferResponse(rec *models.TransferRecord) transferResponse {
	return transferResponse{
		ID:                rec.ID,
		SenderAccountID:   rec.SenderAccountID,
		ReceiverAccountID: rec.ReceiverAccountID,
		Amount:            domain.FormatAmount(rec.Amount),
		Currency:          rec.Currency,
		Strategy:          rec.Strategy,
		Status:            rec.Status,
		CreatedAt:         rec.CreatedAt,
	}
}

// CreateTransfer moves funds between two accounts. The Idempotency-Key
// contract is enforced by middleware in front of this handler.
func (h *TransferHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req struct {
		SenderAccountID   string `json:"sender_account_id"`
		ReceiverAccountID string `json:"receiver_account_id"`
		Amount            string `json:"amount"`
		Strategy          string `json:"strategy"`
	}
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	senderID, err := uuid.Parse(req.SenderAccountID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-sender-account-id", "Invalid sender_account_id")
		return
	}
	receiverID, err := uuid.Parse(req.ReceiverAccountID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-receiver-account-id", "Invalid receiver_account_id")
		return
	}
	amount, err := domain.ParseAmount("amount", req.Amount)
	if err != nil {
		RespondDomainError(w, r, err, "transfer/failed")
		return
	}
	strategy, err := domain.ParseStrategy(req.Strategy, h.defaultStrategy)
	if err != nil {
		RespondDomainError(w, r, err, "transfer/failed")
		return
	}

	if !isAdmin {
		sender, err := h.accounts.GetAccount(r.Context(), senderID)
		if err != nil {
			RespondDomainError(w, r, err, "transfer/failed")
			return
		}
		if sender.OwnerID != actorID {
			RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "sender account does not belong to caller")
			return
		}
	}

	rec, err := h.svc.Transfer(r.Context(), engine.TransferCmd{
		Strategy:   strategy,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Amount:     amount,
	})
	if err != nil {
		RespondDomainError(w, r, err, "transfer/failed")
		return
	}

	RespondJSON(w, http.StatusCreated, newTransferResponse(rec))
}

// GetTransfer returns a ledger record to admins or to the owner of either
// side of the transfer.
func (h *TransferHandler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	transferID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-transfer-id", "Invalid transfer ID")
		return
	}

	rec, err := h.svc.GetTransfer(r.Context(), transferID)
	if err != nil {
		RespondDomainError(w, r, err, "transfer/read-failed")
		return
	}
	if !isAdmin && !h.ownsEither(r, actorID, rec) {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}

	RespondJSON(w, http.StatusOK, newTransferResponse(rec))
}

func (h *TransferHandler) ownsEither(r *http.Request, actorID uuid.UUID, rec *models.TransferRecord) bool {
	for _, id := range []uuid.UUID{rec.SenderAccountID, rec.ReceiverAccountID} {
		acc, err := h.accounts.GetAccount(r.Context(), id)
		if err == nil && acc.OwnerID == actorID {
			return true
		}
	}
	return false
}
