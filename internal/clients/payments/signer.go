package payments

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	ierr "github.com/storiqa/billing/internal/errors"
)

// Signer produces the gateway's request signature: a secp256k1 compact
// signature (r ∥ s, hex) over SHA-256(timestamp ∥ device_id).
type Signer struct {
	key *secp256k1.PrivateKey
}

// NewSigner parses a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	raw, err := hex.DecodeString(privateKeyHex)
	if err != nil || len(raw) != 32 {
		return nil, ierr.NewError("invalid gateway private key").
			WithHint("The payments private key must be a 32-byte hex string").
			Mark(ierr.ErrValidation)
	}
	return &Signer{key: secp256k1.PrivKeyFromBytes(raw)}, nil
}

// Sign hashes timestamp ∥ deviceID and signs the digest. The gateway
// contract uses an empty device id; the concatenation is preserved
// byte-for-byte.
func (s *Signer) Sign(timestamp, deviceID string) string {
	h := sha256.New()
	h.Write([]byte(timestamp))
	h.Write([]byte(deviceID))
	digest := h.Sum(nil)

	// SignCompact prepends a recovery byte; the gateway wants plain r ∥ s.
	sig := ecdsa.SignCompact(s.key, digest, true)
	return hex.EncodeToString(sig[1:])
}

// VerifySign checks an inbound webhook signature: hex compact r ∥ s over
// SHA-256 of the raw body bytes, against the configured public key.
// Any failure is Forbidden.
func VerifySign(rawBody []byte, signHex, publicKeyHex string) error {
	sigBytes, err := hex.DecodeString(signHex)
	if err != nil || len(sigBytes) != 64 {
		return ierr.NewError("malformed webhook signature").
			WithHint("The Sign header must be a 64-byte hex signature").
			Mark(ierr.ErrForbidden)
	}

	pubBytes, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return ierr.WithError(err).
			WithHint("The configured sign public key is not valid hex").
			Mark(ierr.ErrForbidden)
	}
	pubKey, err := secp256k1.ParsePubKey(pubBytes)
	if err != nil {
		return ierr.WithError(err).
			WithHint("The configured sign public key is not a valid secp256k1 key").
			Mark(ierr.ErrForbidden)
	}

	var r, sv secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sigBytes[:32]); overflow {
		return signatureMismatch()
	}
	if overflow := sv.SetByteSlice(sigBytes[32:]); overflow {
		return signatureMismatch()
	}

	digest := sha256.Sum256(rawBody)
	if !ecdsa.NewSignature(&r, &sv).Verify(digest[:], pubKey) {
		return signatureMismatch()
	}
	return nil
}

func signatureMismatch() error {
	return ierr.NewError("webhook signature verification failed").
		WithHint("The request body does not match its signature").
		Mark(ierr.ErrForbidden)
}
