// Package webhook authenticates and routes asynchronous payment gateway events.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance is the maximum accepted age of a signed event.
const DefaultTolerance = 300 * time.Second

var (
	ErrMissingSignature          = errors.New("missing signature header")
	ErrMalformedSignature        = errors.New("malformed signature header")
	ErrTimestampOutsideTolerance = errors.New("signature timestamp outside tolerance")
	ErrNoValidSignature          = errors.New("no valid signature for payload")
)

// Verifier checks the gateway's `t=<unix>,v1=<hex>` signature header against every
// configured signing secret. It holds no mutable state and is safe for concurrent use.
type Verifier struct {
	secrets   [][]byte
	tolerance time.Duration
	now       func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithClock replaces the wall clock used for the tolerance check.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier builds a Verifier. Empty secrets are ignored; a non-positive tolerance falls
// back to DefaultTolerance.
func NewVerifier(secrets []string, tolerance time.Duration, opts ...VerifierOption) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	v := &Verifier{tolerance: tolerance, now: time.Now}
	for _, s := range secrets {
		if s != "" {
			v.secrets = append(v.secrets, []byte(s))
		}
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify returns nil when header carries a fresh signature of body made with any
// configured secret.
func (v *Verifier) Verify(body []byte, header string) error {
	if strings.TrimSpace(header) == "" {
		return ErrMissingSignature
	}

	ts, signatures, err := parseHeader(header)
	if err != nil {
		return err
	}

	if v.now().Sub(time.Unix(ts, 0)) > v.tolerance {
		return ErrTimestampOutsideTolerance
	}

	for _, secret := range v.secrets {
		expected := []byte(computeSignature(secret, ts, body))
		for _, sig := range signatures {
			if hmac.Equal(expected, []byte(sig)) {
				return nil
			}
		}
	}
	return ErrNoValidSignature
}

// Valid reports whether Verify accepts the payload.
func (v *Verifier) Valid(body []byte, header string) bool {
	return v.Verify(body, header) == nil
}

// Sign returns a signature header for body as the gateway would send it.
func Sign(secret string, t time.Time, body []byte) string {
	ts := t.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, computeSignature([]byte(secret), ts, body))
}

func computeSignature(secret []byte, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// parseHeader extracts the timestamp and all v1 signatures. Unknown schemes are ignored.
func parseHeader(header string) (int64, []string, error) {
	var (
		ts         int64
		haveTS     bool
		signatures []string
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: bad timestamp", ErrMalformedSignature)
			}
			ts, haveTS = n, true
		case "v1":
			if value != "" {
				signatures = append(signatures, value)
			}
		}
	}
	if !haveTS {
		return 0, nil, fmt.Errorf("%w: no timestamp", ErrMalformedSignature)
	}
	if len(signatures) == 0 {
		return 0, nil, fmt.Errorf("%w: no v1 signature", ErrMalformedSignature)
	}
	return ts, signatures, nil
}
