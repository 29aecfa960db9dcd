package payments

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storiqa/billing/internal/config"
	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/logger"
	"github.com/storiqa/billing/internal/types"
)

func testRSAKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return key, base64.StdEncoding.EncodeToString(der)
}

func signUserJWT(t *testing.T, key *rsa.PrivateKey, userID int64, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwtClaims{
		UserID:   userID,
		Provider: "Email",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func testPaymentsConfig(t *testing.T, pubB64, userJWT string) *config.PaymentsConfig {
	t.Helper()
	key, _ := testKeyPair(t)
	return &config.PaymentsConfig{
		URL:                "http://payments.test",
		JWTPublicKeyBase64: pubB64,
		UserJWT:            userJWT,
		UserPrivateKey:     hex.EncodeToString(key.Serialize()),
		MaxAccounts:        5,
	}
}

func TestNewClientVerifiesConfiguredJWT(t *testing.T) {
	log, err := logger.NewLogger(types.LogLevelDebug)
	require.NoError(t, err)

	key, pubB64 := testRSAKey(t)
	cfg := testPaymentsConfig(t, pubB64, signUserJWT(t, key, 42, time.Now().Add(time.Hour)))

	c, err := NewClient(cfg, nil, log)
	require.NoError(t, err)
	assert.Equal(t, int64(42), c.(*client).userID)
}

func TestNewClientAcceptsRecentlyExpiredJWT(t *testing.T) {
	// tokens within the clock-skew leeway still verify
	log, err := logger.NewLogger(types.LogLevelDebug)
	require.NoError(t, err)

	key, pubB64 := testRSAKey(t)
	cfg := testPaymentsConfig(t, pubB64, signUserJWT(t, key, 42, time.Now().Add(-30*time.Second)))

	_, err = NewClient(cfg, nil, log)
	assert.NoError(t, err)
}

func TestNewClientRejectsExpiredJWT(t *testing.T) {
	log, err := logger.NewLogger(types.LogLevelDebug)
	require.NoError(t, err)

	key, pubB64 := testRSAKey(t)
	cfg := testPaymentsConfig(t, pubB64, signUserJWT(t, key, 42, time.Now().Add(-5*time.Minute)))

	_, err = NewClient(cfg, nil, log)
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
}

func TestNewClientRejectsForeignJWT(t *testing.T) {
	log, err := logger.NewLogger(types.LogLevelDebug)
	require.NoError(t, err)

	signingKey, _ := testRSAKey(t)
	_, otherPubB64 := testRSAKey(t)
	cfg := testPaymentsConfig(t, otherPubB64, signUserJWT(t, signingKey, 42, time.Now().Add(time.Hour)))

	_, err = NewClient(cfg, nil, log)
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
}

func TestNewClientRejectsUnsignedJWT(t *testing.T) {
	log, err := logger.NewLogger(types.LogLevelDebug)
	require.NoError(t, err)

	_, pubB64 := testRSAKey(t)
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwtClaims{UserID: 42})
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cfg := testPaymentsConfig(t, pubB64, unsigned)
	_, err = NewClient(cfg, nil, log)
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
}
