package handlers

import (
	"errors"
	"net/http"

	"github.com/dvloznov/fundnote-ledger/internal/api/middleware"
	"github.com/dvloznov/fundnote-ledger/internal/domain"
	"github.com/dvloznov/fundnote-ledger/internal/ledger"
	"github.com/dvloznov/fundnote-ledger/internal/logger"
)

// StatusFor maps an error kind to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as an ErrorBody. Internal details are logged but
// only the kind is returned to the client.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := StatusFor(err)
	body := middleware.ErrorBody{Error: http.StatusText(status)}

	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		body.Error = ve.Error()
		body.Reason = string(ve.Reason)
		body.Field = ve.Field
	}
	var ce *ledger.CompensationError
	if errors.As(err, &ce) {
		body.JobID = ce.JobID
	}

	log := logger.FromContext(r.Context())
	switch {
	case status >= http.StatusInternalServerError:
		log.Error().Err(err).Str("op", op).Int("status", status).Msg("Request failed")
	default:
		log.Debug().Err(err).Str("op", op).Int("status", status).Msg("Request rejected")
	}

	middleware.WriteJSON(w, status, body)
}

func writeValidation(w http.ResponseWriter, r *http.Request, op string, reason domain.Reason, field string) {
	writeError(w, r, op, domain.Invalid(reason, field))
}
