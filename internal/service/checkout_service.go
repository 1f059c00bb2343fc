package service

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/starkville/storefront/internal/domain/errors"
	"github.com/starkville/storefront/internal/domain/transaction"
	"github.com/starkville/storefront/internal/providers"
)

const (
	merchDescriptionPrefix = "Merch Purchase: "
	bookingDescription     = "Event Booking Payment"
	defaultBookingAmount   = 1
)

// CheckoutConfig holds the gateway-facing labels and defaults for checkouts.
type CheckoutConfig struct {
	MerchAccountRef   string
	BookingAccountRef string
	// DefaultPhone pays for bookings submitted without a phone number.
	DefaultPhone string
}

// CheckoutService turns purchase requests into pending transactions: it
// validates the order, submits the STK push, records the transaction under
// the gateway's checkout ID and announces it.
type CheckoutService struct {
	store       transaction.Store
	gateway     providers.Gateway
	broadcaster Broadcaster
	cfg         CheckoutConfig
	options
}

// NewCheckoutService creates a new CheckoutService.
func NewCheckoutService(
	store transaction.Store,
	gateway providers.Gateway,
	broadcaster Broadcaster,
	cfg CheckoutConfig,
	opts ...Option,
) *CheckoutService {
	return &CheckoutService{
		store:       store,
		gateway:     gateway,
		broadcaster: broadcaster,
		cfg:         cfg,
		options:     buildOptions(opts),
	}
}

// MerchCheckoutRequest holds the input for a cart checkout.
type MerchCheckoutRequest struct {
	Phone       string
	Items       []transaction.LineItem
	TotalAmount float64
}

// BookingCheckoutRequest holds the input for an event booking payment.
// Zero values fall back to the configured phone and an amount of 1.
type BookingCheckoutRequest struct {
	Phone  string
	Amount float64
}

// CheckoutResult is the outcome of an accepted STK push.
type CheckoutResult struct {
	OrderID     string
	Gateway     map[string]any
	Transaction *transaction.Transaction
}

// MerchCheckout submits a cart for payment.
func (s *CheckoutService) MerchCheckout(ctx context.Context, req MerchCheckoutRequest) (*CheckoutResult, error) {
	order, err := transaction.NewOrder(req.Phone, req.Items, req.TotalAmount, transaction.OrderMerch)
	if err != nil {
		s.countCheckout(transaction.OrderMerch, "invalid")
		return nil, err
	}

	return s.submit(ctx, order, providers.STKPushRequest{
		Phone:            order.Phone,
		Amount:           order.TotalAmount,
		AccountReference: s.cfg.MerchAccountRef,
		Description:      merchDescriptionPrefix + order.Description(),
	})
}

// BookingCheckout submits a single event booking payment.
func (s *CheckoutService) BookingCheckout(ctx context.Context, req BookingCheckoutRequest) (*CheckoutResult, error) {
	phone := req.Phone
	if phone == "" {
		phone = s.cfg.DefaultPhone
	}
	amount := req.Amount
	if amount == 0 {
		amount = defaultBookingAmount
	}

	order, err := transaction.NewOrder(phone, nil, amount, transaction.OrderBooking)
	if err != nil {
		s.countCheckout(transaction.OrderBooking, "invalid")
		return nil, err
	}

	return s.submit(ctx, order, providers.STKPushRequest{
		Phone:            order.Phone,
		Amount:           order.TotalAmount,
		AccountReference: s.cfg.BookingAccountRef,
		Description:      bookingDescription,
	})
}

// submit records the transaction only once the gateway has returned a
// checkout ID; any earlier failure leaves the store untouched.
func (s *CheckoutService) submit(ctx context.Context, order *transaction.Order, req providers.STKPushRequest) (*CheckoutResult, error) {
	logger := s.logger.With().
		Str("order_type", string(order.Type)).
		Str("phone", order.Phone).
		Float64("amount", order.TotalAmount).
		Logger()

	ack, err := s.gateway.InitiateSTKPush(ctx, req)
	if err != nil {
		s.countCheckout(order.Type, gatewayFailureLabel(err))
		logger.Error().Err(err).Msg("STK push failed")
		return nil, fmt.Errorf("initiate stk push: %w", err)
	}

	t, err := transaction.NewTransaction(ack.CheckoutRequestID, order, ack.Raw)
	if err != nil {
		s.countCheckout(order.Type, "rejected")
		return nil, err
	}
	if err := s.store.Put(ctx, t); err != nil {
		s.countCheckout(order.Type, "store_error")
		return nil, fmt.Errorf("record transaction: %w", err)
	}
	s.trackStored(s.store)

	logger.Info().
		Str("checkout_id", t.CheckoutID).
		Str("merchant_request_id", t.MerchantRequestID).
		Msg("STK push accepted")

	s.notify(ctx, s.broadcaster, t)
	s.countCheckout(order.Type, "accepted")

	return &CheckoutResult{
		OrderID:     t.CheckoutID,
		Gateway:     ack.Raw,
		Transaction: t,
	}, nil
}

// GetTransaction returns the transaction recorded under checkoutID.
func (s *CheckoutService) GetTransaction(ctx context.Context, checkoutID string) (*transaction.Transaction, error) {
	return s.store.Get(ctx, checkoutID)
}

// GetMerchOrder returns a merch transaction. Other order types are reported
// as not found.
func (s *CheckoutService) GetMerchOrder(ctx context.Context, orderID string) (*transaction.Transaction, error) {
	t, err := s.store.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrTransactionNotFound) {
			return nil, domainErrors.ErrOrderNotFound
		}
		return nil, err
	}
	if t.Type != transaction.OrderMerch {
		return nil, domainErrors.ErrOrderNotFound
	}
	return t, nil
}

func (s *CheckoutService) countCheckout(orderType transaction.OrderType, result string) {
	if s.metrics != nil {
		s.metrics.CheckoutsTotal.WithLabelValues(string(orderType), result).Inc()
	}
}

func gatewayFailureLabel(err error) string {
	switch {
	case errors.Is(err, domainErrors.ErrCredentials):
		return "credential_error"
	case errors.Is(err, domainErrors.ErrGatewayRejected):
		return "rejected"
	case errors.Is(err, domainErrors.ErrGatewayTimeout):
		return "timeout"
	default:
		return "unavailable"
	}
}
