package service

import (
	"context"
	"encoding/json"
	"errors"

	domainErrors "github.com/starkville/storefront/internal/domain/errors"
	"github.com/starkville/storefront/internal/domain/transaction"
)

// STKCallback is the result notification the gateway posts for a push.
type STKCallback struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	// Raw is the full callback body, kept on the transaction.
	Raw json.RawMessage
}

// CallbackService settles pending transactions from gateway callbacks.
type CallbackService struct {
	store       transaction.Store
	broadcaster Broadcaster
	options
}

func NewCallbackService(store transaction.Store, broadcaster Broadcaster, opts ...Option) *CallbackService {
	return &CallbackService{
		store:       store,
		broadcaster: broadcaster,
		options:     buildOptions(opts),
	}
}

// HandleSTKCallback applies the result to the matching transaction and
// broadcasts the settled record. Unknown checkout IDs return
// ErrTransactionNotFound; a callback for an already settled transaction
// returns ErrInvalidStateTransition and nothing is broadcast.
func (s *CallbackService) HandleSTKCallback(ctx context.Context, cb STKCallback) (*transaction.Transaction, error) {
	if cb.CheckoutRequestID == "" {
		s.countCallback("malformed")
		return nil, domainErrors.ErrMalformedCallback
	}

	logger := s.logger.With().
		Str("checkout_id", cb.CheckoutRequestID).
		Int("result_code", cb.ResultCode).
		Logger()

	t, err := s.store.Update(ctx, cb.CheckoutRequestID, func(t *transaction.Transaction) error {
		return t.ApplyResult(cb.ResultCode, cb.ResultDesc, cb.Raw)
	})
	if err != nil {
		switch {
		case errors.Is(err, domainErrors.ErrTransactionNotFound):
			s.countCallback("unknown")
			logger.Warn().Msg("Callback for unknown transaction")
		case errors.Is(err, domainErrors.ErrInvalidStateTransition):
			s.countCallback("duplicate")
			logger.Warn().Err(err).Msg("Callback for settled transaction ignored")
		default:
			s.countCallback("error")
			logger.Error().Err(err).Msg("Failed to apply callback")
		}
		return nil, err
	}

	logger.Info().
		Str("status", string(t.Status)).
		Str("result_desc", t.ResultDesc).
		Msg("Transaction settled")

	s.countCallback(string(t.Status))
	s.notify(ctx, s.broadcaster, t)
	return t, nil
}

func (s *CallbackService) countCallback(outcome string) {
	if s.metrics != nil {
		s.metrics.CallbacksTotal.WithLabelValues(outcome).Inc()
	}
}
