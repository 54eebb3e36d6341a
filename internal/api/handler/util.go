package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayo6706/wallet-transfer/internal/api/middleware"
	"github.com/ayo6706/wallet-transfer/internal/api/problem"
	"github.com/ayo6706/wallet-transfer/internal/domain"
	"github.com/ayo6706/wallet-transfer/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

// RespondDomainError maps engine and store errors onto problem responses
// carrying the error kind. Anything outside the domain taxonomy is logged and
// reported as a 500 without leaking its message.
func RespondDomainError(w http.ResponseWriter, r *http.Request, err error, fallbackType string) {
	var (
		verr *domain.ValidationError
		nf   *domain.NotFoundError
	)
	kind := string(domain.KindOf(err))
	switch {
	case errors.As(err, &verr):
		respondKind(w, r, http.StatusBadRequest, "transfer/validation-failed", verr.Error(), kind)
	case errors.As(err, &nf):
		respondKind(w, r, http.StatusNotFound, nf.Resource+"/not-found", nf.Error(), kind)
	case errors.Is(err, domain.ErrInsufficientFunds):
		respondKind(w, r, http.StatusBadRequest, "transfer/insufficient-funds", err.Error(), kind)
	case errors.Is(err, domain.ErrConcurrency):
		respondKind(w, r, http.StatusConflict, "transfer/concurrent-modification", "account was modified concurrently; retry the transfer", kind)
	default:
		if status, pType, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("request failed",
			zap.Error(err),
			zap.String("path", r.URL.Path),
			observability.TraceField(r.Context()),
		)
		respondKind(w, r, http.StatusInternalServerError, fallbackType, "internal error", kind)
	}
}

func respondKind(w http.ResponseWriter, r *http.Request, status int, slug, message, kind string) {
	problem.WriteKind(w, r, status, problem.Type(slug), http.StatusText(status), message, kind)
}

func requestActor(r *http.Request) (uuid.UUID, bool, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return uuid.Nil, false, errors.New("missing user in auth context")
	}

	actorID, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, false, errors.New("invalid user_id in auth context")
	}

	return actorID, middleware.UserRoleFromContext(r.Context()) == middleware.RoleAdmin, nil
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23503": // foreign_key_violation
		return http.StatusBadRequest, "db/foreign-key-violation", "invalid reference", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	case "23502": // not_null_violation
		return http.StatusBadRequest, "db/not-null-violation", "missing required field", true
	default:
		return 0, "", "", false
	}
}
