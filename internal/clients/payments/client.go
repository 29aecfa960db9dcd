package payments

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/storiqa/billing/internal/config"
	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/httpclient"
	"github.com/storiqa/billing/internal/logger"
)

// Client talks to the crypto payments gateway.
type Client interface {
	GetRate(ctx context.Context, input GetRateInput) (*Rate, error)
	RefreshRate(ctx context.Context, exchangeID uuid.UUID) (*RateRefresh, error)
	CreateAccount(ctx context.Context, input CreateAccountInput) (*Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	GetAccount(ctx context.Context, accountID uuid.UUID) (*Account, error)
	DeleteAccount(ctx context.Context, accountID uuid.UUID) error
}

// jwtLeeway absorbs clock skew between us and the gateway's token
// issuer when validating time claims.
const jwtLeeway = 60 * time.Second

type jwtClaims struct {
	UserID   int64  `json:"user_id"`
	Provider string `json:"provider"`
	jwt.RegisteredClaims
}

// Valid applies the time-claim checks with leeway; the embedded
// RegisteredClaims validation allows none.
func (c jwtClaims) Valid() error {
	now := time.Now()
	if !c.VerifyExpiresAt(now.Add(-jwtLeeway), false) {
		return jwt.NewValidationError("token is expired", jwt.ValidationErrorExpired)
	}
	if !c.VerifyNotBefore(now.Add(jwtLeeway), false) {
		return jwt.NewValidationError("token is not valid yet", jwt.ValidationErrorNotValidYet)
	}
	if !c.VerifyIssuedAt(now.Add(jwtLeeway), false) {
		return jwt.NewValidationError("token issued in the future", jwt.ValidationErrorIssuedAt)
	}
	return nil
}

type client struct {
	http        httpclient.Client
	url         string
	userID      int64
	userJWT     string
	signer      *Signer
	maxAccounts uint32
	logger      *logger.Logger
}

// NewClient builds the gateway client. The operator's identity comes
// from the configured JWT, verified here once against the RS256 public
// key; a bad token fails startup rather than the first request.
func NewClient(cfg *config.PaymentsConfig, http httpclient.Client, logger *logger.Logger) (Client, error) {
	pubKey, err := parseRSAPublicKey(cfg.JWTPublicKeyBase64)
	if err != nil {
		return nil, err
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))

	var claims jwtClaims
	if _, err := parser.ParseWithClaims(cfg.UserJWT, &claims, func(*jwt.Token) (interface{}, error) {
		return pubKey, nil
	}); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to verify the configured payments JWT").
			Mark(ierr.ErrValidation)
	}

	signer, err := NewSigner(cfg.UserPrivateKey)
	if err != nil {
		return nil, err
	}

	return &client{
		http:        http,
		url:         cfg.URL,
		userID:      claims.UserID,
		userJWT:     cfg.UserJWT,
		signer:      signer,
		maxAccounts: cfg.MaxAccounts,
		logger:      logger,
	}, nil
}

func parseRSAPublicKey(b64 string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("The JWT public key must be base64-encoded DER").
			Mark(ierr.ErrValidation)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("The JWT public key is not a valid public key").
			Mark(ierr.ErrValidation)
	}
	rsaKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, ierr.NewError("JWT public key is not RSA").
			Mark(ierr.ErrValidation)
	}
	return rsaKey, nil
}

// requestWithAuth signs and sends one gateway request. The device id is
// empty by contract; the signature covers timestamp ∥ device_id exactly.
func (c *client) requestWithAuth(ctx context.Context, method, query string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to serialize gateway request").
			Mark(ierr.ErrSystem)
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	deviceID := ""

	req := &httpclient.Request{
		Method: method,
		URL:    c.url + query,
		Body:   payload,
		Headers: map[string]string{
			"authorization": "Bearer " + c.userJWT,
			"timestamp":     timestamp,
			"device-id":     deviceID,
			"sign":          c.signer.Sign(timestamp, deviceID),
		},
	}

	resp, err := c.http.Send(ctx, req)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ierr.NewError("payments gateway request failed").
			WithHintf("Gateway returned status %d", resp.StatusCode).
			WithReportableDetails(map[string]interface{}{
				"method": method,
				"query":  query,
				"status": resp.StatusCode,
			}).
			Mark(ierr.ErrHTTPClient)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to parse gateway response").
			Mark(ierr.ErrHTTPClient)
	}
	return nil
}

func (c *client) GetRate(ctx context.Context, input GetRateInput) (*Rate, error) {
	var rate Rate
	if err := c.requestWithAuth(ctx, http.MethodPost, "/v1/rate", input, &rate); err != nil {
		return nil, err
	}
	c.logger.Debugw("reserved gateway rate",
		"exchange_id", rate.ID,
		"from", input.From,
		"to", input.To,
		"rate", rate.Rate.String(),
	)
	return &rate, nil
}

func (c *client) RefreshRate(ctx context.Context, exchangeID uuid.UUID) (*RateRefresh, error) {
	var refresh RateRefresh
	query := "/v1/rate/refresh"
	body := map[string]interface{}{"rateId": exchangeID}
	if err := c.requestWithAuth(ctx, http.MethodPost, query, body, &refresh); err != nil {
		return nil, err
	}
	return &refresh, nil
}

func (c *client) CreateAccount(ctx context.Context, input CreateAccountInput) (*Account, error) {
	var account Account
	query := fmt.Sprintf("/v1/users/%d/accounts", c.userID)
	if err := c.requestWithAuth(ctx, http.MethodPost, query, input, &account); err != nil {
		return nil, err
	}
	c.logger.Infow("created gateway account",
		"account_id", account.ID,
		"currency", account.Currency,
	)
	return &account, nil
}

func (c *client) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	query := fmt.Sprintf("/v1/users/%d/accounts?offset=0&limit=%d", c.userID, c.maxAccounts)
	if err := c.requestWithAuth(ctx, http.MethodGet, query, struct{}{}, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (c *client) GetAccount(ctx context.Context, accountID uuid.UUID) (*Account, error) {
	var account Account
	query := fmt.Sprintf("/v1/accounts/%s", accountID)
	if err := c.requestWithAuth(ctx, http.MethodGet, query, struct{}{}, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *client) DeleteAccount(ctx context.Context, accountID uuid.UUID) error {
	query := fmt.Sprintf("/v1/accounts/%s", accountID)
	return c.requestWithAuth(ctx, http.MethodDelete, query, struct{}{}, nil)
}
