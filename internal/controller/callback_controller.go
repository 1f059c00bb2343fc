package controller

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	domainErrors "github.com/starkville/storefront/internal/domain/errors"
	"github.com/starkville/storefront/internal/service"
)

// CallbackController receives STK push results from the gateway.
type CallbackController struct {
	callbacks *service.CallbackService
	logger    zerolog.Logger
}

func NewCallbackController(callbacks *service.CallbackService, logger zerolog.Logger) *CallbackController {
	return &CallbackController{callbacks: callbacks, logger: logger}
}

// Callback handles POST /callback
//
// The gateway retries anything but the fixed acknowledgement, so a repeated
// callback for a settled transaction is still acknowledged.
func (h *CallbackController) Callback(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, domainErrors.NewValidationError("body", "unreadable callback body"))
		return
	}
	h.logger.Debug().RawJSON("body", jsonOrNull(raw)).Msg("Received STK callback")

	var req CallbackRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, domainErrors.ErrMalformedCallback)
		return
	}
	cb := req.Body.STKCallback
	if cb == nil || cb.CheckoutRequestID == "" || cb.ResultCode == nil {
		writeError(w, domainErrors.ErrMalformedCallback)
		return
	}

	_, err = h.callbacks.HandleSTKCallback(r.Context(), service.STKCallback{
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        *cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
		Raw:               raw,
	})
	switch {
	case err == nil, errors.Is(err, domainErrors.ErrInvalidStateTransition):
		writeJSON(w, http.StatusOK, acceptedAck)
	case errors.Is(err, domainErrors.ErrTransactionNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Transaction not found", Code: "not_found"})
	default:
		writeError(w, err)
	}
}

func jsonOrNull(b []byte) []byte {
	if json.Valid(b) {
		return b
	}
	return []byte("null")
}
