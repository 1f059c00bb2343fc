package providers

import (
	"context"
)

// STKPushResult holds the gateway acknowledgement of an STK push.
type STKPushResult struct {
	MerchantRequestID   string
	CheckoutRequestID   string
	ResponseCode        string
	ResponseDescription string
	CustomerMessage     string

	// Raw is the acknowledgement exactly as the gateway sent it.
	Raw map[string]any
}

// Gateway is the interface that mobile-money gateways implement.
type Gateway interface {
	// Name returns the gateway name.
	Name() string
	// InitiateSTKPush prompts the payer's phone to authorize a payment. The
	// result arrives later through the callback URL.
	InitiateSTKPush(ctx context.Context, req STKPushRequest) (*STKPushResult, error)
}

// STKPushRequest contains the data needed to initiate an STK push.
type STKPushRequest struct {
	Phone            string // 12-digit 2547XXXXXXXX form
	Amount           float64
	AccountReference string
	Description      string
}
