package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/GregMSThompson/budget-backend/internal/errs"
	"github.com/GregMSThompson/budget-backend/pkg/logger"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (h *responseHandler) WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	h.writeError(w, r, status, ErrorResponse{Code: code, Message: message})
}

func (h *responseHandler) writeError(w http.ResponseWriter, r *http.Request, status int, body ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		log := logger.FromContext(r.Context())
		log.Error("failed to encode error response", "error", err, "status", status, "code", body.Code)
	}
}

func (h *responseHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())

	var (
		notFound      *errs.NotFoundError
		exists        *errs.AlreadyExistsError
		validation    *errs.ValidationError
		forbidden     *errs.ForbiddenError
		linked        *errs.AlreadyLinkedError
		inProgress    *errs.SyncInProgressError
		credential    *errs.InvalidCredentialError
		malformed     *errs.MalformedClassifierOutputError
		quota         *errs.QuotaExhaustedError
		rename        *errs.RenameIncompleteError
		database      *errs.DatabaseError
		external      *errs.ExternalServiceError
		encryption    *errs.EncryptionError
		syntax        *json.SyntaxError
		unmarshalType *json.UnmarshalTypeError
	)

	switch {
	case errors.As(err, &notFound):
		log.Warn("resource not found", "error", notFound.Message)
		h.WriteError(w, r, http.StatusNotFound, "not_found", notFound.Message)

	case errors.As(err, &exists):
		log.Warn("resource already exists", "error", exists.Message)
		h.WriteError(w, r, http.StatusConflict, "already_exists", exists.Message)

	case errors.As(err, &validation):
		log.Warn("validation failed", "error", validation.Message)
		h.WriteError(w, r, http.StatusBadRequest, "invalid_input", validation.Message)

	case errors.As(err, &syntax), errors.As(err, &unmarshalType),
		errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		log.Warn("malformed request body", "error", err)
		h.WriteError(w, r, http.StatusBadRequest, "invalid_input", "request body is not valid JSON")

	case errors.As(err, &forbidden):
		log.Warn("forbidden", "error", forbidden.Message)
		h.WriteError(w, r, http.StatusForbidden, "forbidden", forbidden.Message)

	case errors.As(err, &linked):
		log.Info("link rejected", "error", linked.Message)
		h.WriteError(w, r, http.StatusConflict, "already_linked", linked.Message)

	case errors.As(err, &inProgress):
		log.Info("lease held", "purpose", inProgress.Purpose)
		h.WriteError(w, r, http.StatusConflict, "sync_in_progress", inProgress.Message)

	case errors.As(err, &credential):
		log.Warn("provider credential rejected", "plaid_code", credential.Code)
		h.WriteError(w, r, http.StatusConflict, "relink_required", credential.Message)

	case errors.As(err, &malformed):
		// the reason stays in the logs; clients only learn the call failed
		log.Error("classifier output rejected", "reason", malformed.Reason)
		h.WriteError(w, r, http.StatusBadGateway, "categorization_failed",
			"Categorization failed, please try again")

	case errors.As(err, &quota):
		log.Info("quota exhausted")
		h.WriteError(w, r, http.StatusForbidden, "quota_exhausted", quota.Message)

	case errors.As(err, &rename):
		log.Error("category rename incomplete",
			"old_name", rename.OldName,
			"new_name", rename.NewName,
			"relabeled", rename.Relabeled,
			"remaining", rename.Remaining)
		h.writeError(w, r, http.StatusInternalServerError, ErrorResponse{
			Code:    "rename_incomplete",
			Message: rename.Message,
			Details: map[string]int{"relabeled": rename.Relabeled, "remaining": rename.Remaining},
		})

	case errors.As(err, &database):
		log.Error("database error",
			"operation", database.Operation,
			"error", database.Message)
		h.WriteError(w, r, http.StatusInternalServerError, "internal_error",
			"An error occurred")

	case errors.As(err, &external):
		level := slog.LevelError
		if external.Transient {
			level = slog.LevelWarn
		}
		log.Log(r.Context(), level, "external service error",
			"service", external.Service,
			"transient", external.Transient,
			"error", external.Message)

		status := http.StatusBadGateway
		if external.Transient {
			status = http.StatusServiceUnavailable
		}
		h.WriteError(w, r, status, "service_unavailable",
			"Service temporarily unavailable")

	case errors.As(err, &encryption):
		log.Error("encryption error", "error", encryption.Message)
		h.WriteError(w, r, http.StatusInternalServerError, "internal_error",
			"An error occurred")

	default:
		log.Error("unexpected error",
			"error", err,
			"type", fmt.Sprintf("%T", err))
		h.WriteError(w, r, http.StatusInternalServerError, "internal_error",
			"An unexpected error occurred")
	}
}
