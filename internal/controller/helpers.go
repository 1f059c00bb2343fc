package controller

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	domainErrors "github.com/starkville/storefront/internal/domain/errors"
)

var validate = validator.New()

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{domainErrors.ErrOrderNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrTransactionNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrMalformedCallback, http.StatusBadRequest, "malformed_callback"},
	{domainErrors.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{domainErrors.ErrDuplicateRequest, http.StatusConflict, "duplicate_request"},
	{domainErrors.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition"},
	{domainErrors.ErrGatewayTimeout, http.StatusGatewayTimeout, "gateway_timeout"},
	{domainErrors.ErrGatewayUnavailable, http.StatusServiceUnavailable, "gateway_unavailable"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}

	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		resp.Code = "validation_error"
		resp.Field = validationErr.Field
		resp.Error = validationErr.Message
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			resp.Code = m.code
			writeJSON(w, m.status, resp)
			return
		}
	}

	var domainErr *domainErrors.DomainError
	if errors.As(err, &domainErr) {
		resp.Code = domainErr.Code
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	resp.Code = "internal_error"
	resp.Error = "Internal Server Error"
	writeJSON(w, http.StatusInternalServerError, resp)
}

// writeCheckoutError reports a failed STK push. Credential and gateway
// failures use the {success:false, error} shape storefront pages expect; a
// gateway rejection relays the gateway's own error body.
func writeCheckoutError(w http.ResponseWriter, err error) {
	var rejection *domainErrors.GatewayRejectionError
	switch {
	case errors.Is(err, domainErrors.ErrCredentials):
		writeJSON(w, http.StatusInternalServerError, CheckoutErrorResponse{
			Error:   json.RawMessage(`"Failed to get OAuth token"`),
			Details: err.Error(),
		})
	case errors.As(err, &rejection):
		writeJSON(w, http.StatusInternalServerError, CheckoutErrorResponse{Error: rejection.Payload})
	case errors.Is(err, domainErrors.ErrGatewayTimeout):
		writeGatewayFailure(w, http.StatusGatewayTimeout, err)
	case errors.Is(err, domainErrors.ErrGatewayUnavailable):
		writeGatewayFailure(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, err)
	}
}

func writeGatewayFailure(w http.ResponseWriter, status int, err error) {
	msg, _ := json.Marshal(err.Error())
	writeJSON(w, status, CheckoutErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return domainErrors.NewValidationError("body", "request body too large")
		}
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for routes whose body may be empty.
func decodeOptionalJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	return nil
}

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return domainErrors.NewValidationError(ve[0].Namespace(), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}
