// Package signature signs outbound checkout API requests. Bodies are
// canonicalized with RFC 8785 style canonical JSON before being HMAC-signed so
// the backend can recompute the signature independently of key order and
// whitespace.
package signature

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	canonicaljson "github.com/gibson042/canonicaljson-go"
)

// Header names carrying the request signature.
const (
	HeaderSignature = "Signature"
	HeaderTimestamp = "Timestamp"
)

// Material captures the inputs of a signature.
type Material struct {
	Timestamp     time.Time
	CanonicalBody []byte
	Method        string
	Path          string
}

// Signer produces a signature for an outbound request.
type Signer interface {
	Sign(ctx context.Context, material Material) (string, error)
}

// SignerFunc lifts bare functions into [Signer].
type SignerFunc func(ctx context.Context, material Material) (string, error)

// Sign delegates to the wrapped function.
func (f SignerFunc) Sign(ctx context.Context, material Material) (string, error) {
	return f(ctx, material)
}

// Verifier validates a signature produced by a [Signer].
type Verifier interface {
	Verify(ctx context.Context, signature string, material Material) error
}

// HMACSigner signs requests with the base64url-encoded HMAC-SHA256 of
// `RFC3339Nano(timestamp) + "." + canonicalJSON`.
type HMACSigner struct {
	Key []byte
}

// Sign implements [Signer].
func (s HMACSigner) Sign(_ context.Context, material Material) (string, error) {
	sum, err := computeHMAC(s.Key, material)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}

// HMACVerifier validates signatures produced by [HMACSigner] with the same key.
type HMACVerifier struct {
	Key []byte
}

// Verify implements [Verifier] by recomputing the expected HMAC signature.
func (v HMACVerifier) Verify(_ context.Context, signature string, material Material) error {
	expected, err := computeHMAC(v.Key, material)
	if err != nil {
		return err
	}
	decoded, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("signature: decode signature: %w", err)
	}
	if !hmac.Equal(decoded, expected) {
		return errors.New("signature: invalid signature")
	}
	return nil
}

func computeHMAC(key []byte, material Material) ([]byte, error) {
	if len(key) == 0 {
		return nil, errors.New("signature: HMAC key must not be empty")
	}
	mac := hmac.New(sha256.New, key)
	if _, err := mac.Write(BuildSigningPayload(material.Timestamp, material.CanonicalBody)); err != nil {
		return nil, fmt.Errorf("signature: compute signature: %w", err)
	}
	return mac.Sum(nil), nil
}

// CanonicalizeJSONBody normalizes arbitrary JSON into canonical form for signing.
// An empty body canonicalizes to `null`.
func CanonicalizeJSONBody(raw []byte) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("null"), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("signature: multiple JSON documents in body")
	}
	return canonicaljson.Marshal(payload)
}

// FormatTimestamp renders ts the way the Timestamp header expects it.
func FormatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}

// ParseTimestamp accepts Timestamp header values in RFC3339 or RFC3339Nano format.
func ParseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("signature: empty timestamp")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}

// BuildSigningPayload constructs the canonical string that is HMAC-signed.
func BuildSigningPayload(ts time.Time, canonicalBody []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(FormatTimestamp(ts))
	buf.WriteByte('.')
	buf.Write(canonicalBody)
	return buf.Bytes()
}
