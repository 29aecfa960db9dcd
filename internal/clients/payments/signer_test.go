package payments

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierr "github.com/storiqa/billing/internal/errors"
)

func testKeyPair(t *testing.T) (*secp256k1.PrivateKey, string) {
	t.Helper()
	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	return key, hex.EncodeToString(key.PubKey().SerializeCompressed())
}

func signBody(key *secp256k1.PrivateKey, body []byte) string {
	digest := sha256.Sum256(body)
	sig := ecdsa.SignCompact(key, digest[:], true)
	return hex.EncodeToString(sig[1:])
}

func TestVerifySignRoundTrip(t *testing.T) {
	key, pubHex := testKeyPair(t)
	body := []byte(`{"transactionId":"tx-1","amountCaptured":"100"}`)

	assert.NoError(t, VerifySign(body, signBody(key, body), pubHex))
}

func TestVerifySignRejectsTamperedBody(t *testing.T) {
	key, pubHex := testKeyPair(t)
	body := []byte(`{"transactionId":"tx-1","amountCaptured":"100"}`)
	sig := signBody(key, body)

	tampered := []byte(`{"transactionId":"tx-1","amountCaptured":"999"}`)
	err := VerifySign(tampered, sig, pubHex)
	require.Error(t, err)
	assert.True(t, ierr.IsForbidden(err))
}

func TestVerifySignRejectsWrongKey(t *testing.T) {
	key, _ := testKeyPair(t)
	_, otherPubHex := testKeyPair(t)
	body := []byte(`{}`)

	err := VerifySign(body, signBody(key, body), otherPubHex)
	require.Error(t, err)
	assert.True(t, ierr.IsForbidden(err))
}

func TestVerifySignRejectsMalformedSignature(t *testing.T) {
	_, pubHex := testKeyPair(t)

	for _, sig := range []string{"", "zz", "deadbeef"} {
		err := VerifySign([]byte(`{}`), sig, pubHex)
		require.Error(t, err)
		assert.True(t, ierr.IsForbidden(err))
	}
}

func TestVerifySignRejectsBadPublicKey(t *testing.T) {
	key, _ := testKeyPair(t)
	body := []byte(`{}`)
	sig := signBody(key, body)

	for _, pub := range []string{"", "not-hex", "deadbeef"} {
		err := VerifySign(body, sig, pub)
		require.Error(t, err)
		assert.True(t, ierr.IsForbidden(err))
	}
}

func TestSignerRoundTrip(t *testing.T) {
	key, pubHex := testKeyPair(t)
	signer := &Signer{key: key}

	// the gateway verifies request signatures over timestamp ∥ device_id
	sig := signer.Sign("1700000000", "")
	assert.NoError(t, VerifySign([]byte("1700000000"), sig, pubHex))
}

func TestNewSignerRejectsBadKeys(t *testing.T) {
	for _, keyHex := range []string{"", "not-hex", "deadbeef"} {
		_, err := NewSigner(keyHex)
		assert.Error(t, err)
	}

	key, _ := testKeyPair(t)
	s, err := NewSigner(hex.EncodeToString(key.Serialize()))
	require.NoError(t, err)
	assert.NotNil(t, s)
}
