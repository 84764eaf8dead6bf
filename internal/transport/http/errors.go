package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"lifecoach/backend/internal/apperr"
	"lifecoach/backend/internal/booking"
	"lifecoach/backend/internal/service/auth"
	"lifecoach/backend/internal/store"
)

const maxBodyBytes = 1 << 20

const (
	codeBadRequest   = "bad_request"
	codeValidation   = "validation_error"
	codeNotFound     = "not_found"
	codeConflict     = "conflict"
	codeUnauthorized = "unauthorized"
	codeForbidden    = "forbidden"
	codeUpstream     = "upstream_unavailable"
	codeInternal     = "internal_error"
)

var errInvalidID = apperr.Validation("Invalid id")

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// writeError maps service errors onto status codes. Anything unclassified is
// logged and reported as a 500 without its text.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	var (
		vErr  *apperr.ValidationError
		nfErr *apperr.NotFoundError
		rErr  *apperr.RemoteError
	)
	switch {
	case errors.As(err, &vErr):
		writeErrorCode(w, http.StatusBadRequest, codeValidation, vErr.Error())
	case errors.As(err, &nfErr):
		writeErrorCode(w, http.StatusNotFound, codeNotFound, nfErr.Error())
	case errors.Is(err, booking.ErrSessionOwned):
		writeErrorCode(w, http.StatusForbidden, codeForbidden, "This booking belongs to another account")
	case errors.Is(err, booking.ErrAuthRequired):
		writeErrorCode(w, http.StatusUnauthorized, codeUnauthorized, "Please sign in to complete your booking")
	case errors.Is(err, auth.ErrInvalidToken):
		writeErrorCode(w, http.StatusUnauthorized, codeUnauthorized, "Invalid or expired token")
	case errors.Is(err, store.ErrIdempotencyConflict):
		writeErrorCode(w, http.StatusConflict, codeConflict, "Idempotency key was already used for a different request")
	case errors.Is(err, store.ErrConflict):
		writeErrorCode(w, http.StatusConflict, codeConflict, "The resource changed or the time slot is already taken")
	case errors.As(err, &rErr):
		log.Warn("remote call failed", slog.String("op", rErr.Op), slog.Any("err", rErr.Err))
		writeErrorCode(w, http.StatusBadGateway, codeUpstream, "A backing service is unavailable, please try again")
	default:
		log.Error("unhandled error", slog.Any("err", err))
		writeErrorCode(w, http.StatusInternalServerError, codeInternal, "An unexpected error occurred")
	}
}

// decodeJSON reads a bounded JSON body into dst. An empty body leaves dst
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation("Invalid request body")
	}
	return nil
}
