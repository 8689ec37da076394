package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Verdict is the outcome of a signature check.
type Verdict int

const (
	Invalid Verdict = iota
	Valid
)

func (v Verdict) String() string {
	if v == Valid {
		return "valid"
	}
	return "invalid"
}

// DefaultTolerance is the accepted age of a signed timestamp.
const DefaultTolerance = 5 * time.Minute

const (
	timestampPrefix = "t="
	signaturePrefix = "v1="
)

// Verifier checks `t=<unix>,v1=<hex>` signature headers. The signed payload
// is "<t>.<body>" and the MAC is HMAC-SHA256 keyed with the shared secret.
// A zero tolerance disables the timestamp window.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier creates a verifier for one shared secret.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	return &Verifier{secret: []byte(secret), tolerance: tolerance, now: time.Now}
}

// Verify checks header against body. Any malformed input is Invalid.
func (v *Verifier) Verify(body []byte, header string) Verdict {
	if v == nil || len(v.secret) == 0 || header == "" {
		return Invalid
	}

	ts, sigs, ok := parseHeader(header)
	if !ok {
		return Invalid
	}

	if v.tolerance > 0 {
		age := v.now().Sub(time.Unix(ts, 0))
		if age < 0 {
			age = -age
		}
		if age > v.tolerance {
			return Invalid
		}
	}

	expected := v.mac(ts, body)
	for _, sig := range sigs {
		got, err := hex.DecodeString(sig)
		if err != nil || len(got) != sha256.Size {
			continue
		}
		if hmac.Equal(expected, got) {
			return Valid
		}
	}
	return Invalid
}

// Sign produces a header value for body at ts. Used by tests and appealctl.
func (v *Verifier) Sign(body []byte, ts time.Time) string {
	unix := ts.Unix()
	return timestampPrefix + strconv.FormatInt(unix, 10) + "," + signaturePrefix + hex.EncodeToString(v.mac(unix, body))
}

func (v *Verifier) mac(ts int64, body []byte) []byte {
	h := hmac.New(sha256.New, v.secret)
	h.Write([]byte(strconv.FormatInt(ts, 10)))
	h.Write([]byte("."))
	h.Write(body)
	return h.Sum(nil)
}

// parseHeader extracts the timestamp and every v1 signature. Unknown
// schemes are skipped; a missing or repeated timestamp fails.
func parseHeader(header string) (int64, []string, bool) {
	var (
		ts     int64
		haveTS bool
		sigs   []string
	)
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, timestampPrefix):
			if haveTS {
				return 0, nil, false
			}
			n, err := strconv.ParseInt(strings.TrimPrefix(part, timestampPrefix), 10, 64)
			if err != nil || n <= 0 {
				return 0, nil, false
			}
			ts, haveTS = n, true
		case strings.HasPrefix(part, signaturePrefix):
			sigs = append(sigs, strings.TrimPrefix(part, signaturePrefix))
		}
	}
	if !haveTS || len(sigs) == 0 {
		return 0, nil, false
	}
	return ts, sigs, true
}
