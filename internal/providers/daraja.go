package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	domainErrors "github.com/starkville/storefront/internal/domain/errors"
	"github.com/starkville/storefront/pkg/retry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	darajaName       = "daraja"
	tokenPath        = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath      = "/mpesa/stkpush/v1/processrequest"
	transactionType  = "CustomerPayBillOnline"
	maxResponseBytes = 1 << 20
)

// eat is East Africa Time; Daraja validates the password timestamp against it.
var eat = time.FixedZone("EAT", 3*60*60)

// DarajaConfig holds the Safaricom Daraja API settings.
type DarajaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	CacheToken     bool
	Timeout        time.Duration
	TokenRetry     retry.Config
}

// DarajaProvider submits STK push requests to Safaricom's M-Pesa Daraja API.
type DarajaProvider struct {
	cfg    DarajaConfig
	client *http.Client
	tokens *tokenSource
	now    func() time.Time
	logger zerolog.Logger
}

type DarajaOption func(*DarajaProvider)

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(c *http.Client) DarajaOption {
	return func(p *DarajaProvider) { p.client = c }
}

// WithClock overrides time.Now, used for the password timestamp and token expiry.
func WithClock(now func() time.Time) DarajaOption {
	return func(p *DarajaProvider) { p.now = now }
}

func WithDarajaLogger(l zerolog.Logger) DarajaOption {
	return func(p *DarajaProvider) { p.logger = l }
}

func NewDarajaProvider(cfg DarajaConfig, opts ...DarajaOption) *DarajaProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.TokenRetry.MaxAttempts == 0 {
		cfg.TokenRetry = retry.DefaultConfig()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	p := &DarajaProvider{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, o := range opts {
		o(p)
	}
	p.tokens = newTokenSource(cfg.CacheToken, p.fetchToken, p.now)
	return p
}

func (p *DarajaProvider) Name() string { return darajaName }

// Timestamp formats t as YYYYMMDDHHMMSS in East Africa Time.
func Timestamp(t time.Time) string {
	return t.In(eat).Format("20060102150405")
}

// Password builds the STK push password: base64(shortcode + passkey + timestamp).
func Password(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

type stkPushPayload struct {
	BusinessShortCode string  `json:"BusinessShortCode"`
	Password          string  `json:"Password"`
	Timestamp         string  `json:"Timestamp"`
	TransactionType   string  `json:"TransactionType"`
	Amount            float64 `json:"Amount"`
	PartyA            string  `json:"PartyA"`
	PartyB            string  `json:"PartyB"`
	PhoneNumber       string  `json:"PhoneNumber"`
	CallBackURL       string  `json:"CallBackURL"`
	AccountReference  string  `json:"AccountReference"`
	TransactionDesc   string  `json:"TransactionDesc"`
}

func (p *DarajaProvider) InitiateSTKPush(ctx context.Context, req STKPushRequest) (*STKPushResult, error) {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domainErrors.ErrCredentials, err)
	}

	timestamp := Timestamp(p.now())
	payload := stkPushPayload{
		BusinessShortCode: p.cfg.ShortCode,
		Password:          Password(p.cfg.ShortCode, p.cfg.Passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   transactionType,
		Amount:            req.Amount,
		PartyA:            req.Phone,
		PartyB:            p.cfg.ShortCode,
		PhoneNumber:       req.Phone,
		CallBackURL:       p.cfg.CallbackURL,
		AccountReference:  req.AccountReference,
		TransactionDesc:   req.Description,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal stk push payload: %w", err)
	}

	p.logger.Debug().
		Str("phone", req.Phone).
		Float64("amount", req.Amount).
		Str("account_reference", req.AccountReference).
		Str("description", req.Description).
		Msg("Sending STK push")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+stkPushPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build stk push request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read stk push response: %w", transportError(err))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		if resp.StatusCode == http.StatusUnauthorized {
			p.tokens.Invalidate()
		}
		return nil, domainErrors.NewGatewayRejectionError(resp.StatusCode, respBody)
	}

	result, err := parseSTKPushResult(respBody)
	if err != nil {
		return nil, domainErrors.NewGatewayRejectionError(resp.StatusCode, respBody)
	}
	return result, nil
}

func parseSTKPushResult(body []byte) (*STKPushResult, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode stk push response: %w", err)
	}

	str := func(key string) string {
		s, _ := raw[key].(string)
		return s
	}
	result := &STKPushResult{
		MerchantRequestID:   str("MerchantRequestID"),
		CheckoutRequestID:   str("CheckoutRequestID"),
		ResponseCode:        str("ResponseCode"),
		ResponseDescription: str("ResponseDescription"),
		CustomerMessage:     str("CustomerMessage"),
		Raw:                 raw,
	}
	if result.CheckoutRequestID == "" {
		return nil, domainErrors.ErrMissingCheckoutID
	}
	return result, nil
}

type tokenResponse struct {
	AccessToken string          `json:"access_token"`
	ExpiresIn   json.RawMessage `json:"expires_in"`
}

// transportError maps a failed round trip to the gateway error taxonomy.
// Client.Timeout surfaces as a net.Error rather than context.DeadlineExceeded.
func transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", domainErrors.ErrGatewayTimeout, err)
	}
	return fmt.Errorf("%w: %w", domainErrors.ErrGatewayUnavailable, err)
}

// fetchToken exchanges the consumer key and secret for an access token.
// Client errors are not retried; network failures and 5xx are.
func (p *DarajaProvider) fetchToken(ctx context.Context) (string, time.Duration, error) {
	cfg := p.cfg.TokenRetry
	cfg.OnRetry = func(n uint, err error) {
		p.logger.Warn().Err(err).Uint("attempt", n+1).Msg("OAuth token request failed, retrying")
	}

	type grant struct {
		token string
		ttl   time.Duration
	}
	g, err := retry.DoWithResult(ctx, cfg, func() (grant, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+tokenPath, nil)
		if err != nil {
			return grant{}, retry.Unrecoverable(err)
		}
		auth := base64.StdEncoding.EncodeToString([]byte(p.cfg.ConsumerKey + ":" + p.cfg.ConsumerSecret))
		req.Header.Set("Authorization", "Basic "+auth)

		resp, err := p.client.Do(req)
		if err != nil {
			return grant{}, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return grant{}, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return grant{}, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, body)
		}
		if resp.StatusCode != http.StatusOK {
			return grant{}, retry.Unrecoverable(fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, body))
		}

		var tr tokenResponse
		if err := json.Unmarshal(body, &tr); err != nil {
			return grant{}, retry.Unrecoverable(fmt.Errorf("decode token response: %w", err))
		}
		if tr.AccessToken == "" {
			return grant{}, retry.Unrecoverable(fmt.Errorf("token response has no access_token"))
		}
		return grant{token: tr.AccessToken, ttl: parseExpiresIn(tr.ExpiresIn)}, nil
	})
	if err != nil {
		return "", 0, err
	}
	p.logger.Debug().Dur("ttl", g.ttl).Msg("Access token acquired")
	return g.token, g.ttl, nil
}

// parseExpiresIn accepts both "3599" and 3599; Daraja sends the former.
func parseExpiresIn(raw json.RawMessage) time.Duration {
	var seconds float64
	if err := json.Unmarshal(raw, &seconds); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		if _, err := fmt.Sscanf(s, "%g", &seconds); err != nil {
			return 0
		}
	}
	return time.Duration(seconds * float64(time.Second))
}
