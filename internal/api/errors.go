package api

import (
	"errors"
	"net/http"

	errorsmod "cosmossdk.io/errors"

	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/storage"
	"lockup-ledger/internal/token"
)

var errMissingCaller = errors.New("X-Caller header is required")

type errorResponse struct {
	Error     string `json:"error"`
	Codespace string `json:"codespace,omitempty"`
	Code      uint32 `json:"code,omitempty"`
}

var statusByKind = []struct {
	kind   error
	status int
}{
	{domain.ErrPoolNotFound, http.StatusNotFound},
	{domain.ErrPositionNotFound, http.StatusNotFound},
	{storage.ErrNotFound, http.StatusNotFound},
	{token.ErrUnknownAsset, http.StatusNotFound},
	{domain.ErrUnauthorized, http.StatusForbidden},
	{domain.ErrPoolAlreadyExists, http.StatusConflict},
	{domain.ErrAlreadyExited, http.StatusConflict},
	{storage.ErrDuplicateKey, http.StatusConflict},
	{domain.ErrInvalidDuration, http.StatusBadRequest},
	{domain.ErrInvalidAmount, http.StatusBadRequest},
	{domain.ErrInvalidMultiplier, http.StatusBadRequest},
	{domain.ErrInvalidAddress, http.StatusBadRequest},
	{storage.ErrInvalidInput, http.StatusBadRequest},
	{domain.ErrMaxLimitExceeded, http.StatusUnprocessableEntity},
	{domain.ErrNotMaturedAndNotForced, http.StatusUnprocessableEntity},
	{domain.ErrMultiplierDecreaseRequiresSettleAll, http.StatusUnprocessableEntity},
	{domain.ErrInsufficientBalanceOrAllowance, http.StatusUnprocessableEntity},
	{domain.ErrNotAllowedInEmergency, http.StatusServiceUnavailable},
}

// statusFor maps an error kind to an HTTP status code.
func statusFor(err error) int {
	if errors.Is(err, errMissingCaller) {
		return http.StatusUnauthorized
	}
	for _, m := range statusByKind {
		if errors.Is(err, m.kind) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

func newErrorResponse(err error, status int) errorResponse {
	resp := errorResponse{Error: err.Error()}
	if status == http.StatusInternalServerError {
		resp.Error = http.StatusText(status)
	}
	codespace, code, _ := errorsmod.ABCIInfo(err, false)
	if codespace == domain.Codespace {
		resp.Codespace = codespace
		resp.Code = code
	}
	return resp
}
