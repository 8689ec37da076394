package webhook

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestVerifier(secret string, tolerance time.Duration) *Verifier {
	v := NewVerifier(secret, tolerance)
	v.now = func() time.Time { return fixedNow }
	return v
}

func TestVerify_RoundTrip(t *testing.T) {
	v := newTestVerifier("whsec_test", DefaultTolerance)
	body := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)

	header := v.Sign(body, fixedNow)
	assert.Equal(t, Valid, v.Verify(body, header))
}

func TestVerify_AnySingleBitFlipFails(t *testing.T) {
	v := newTestVerifier("whsec_test", DefaultTolerance)
	body := []byte(`{"id":"evt_1","amount":1500}`)
	header := v.Sign(body, fixedNow)

	for i := range body {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), body...)
			mutated[i] ^= 1 << bit
			require.Equal(t, Invalid, v.Verify(mutated, header), "byte %d bit %d", i, bit)
		}
	}

	sig := header[strings.Index(header, "v1=")+3:]
	for i := range sig {
		flipped := []byte(sig)
		if flipped[i] == '0' {
			flipped[i] = '1'
		} else {
			flipped[i] = '0'
		}
		h := fmt.Sprintf("t=%d,v1=%s", fixedNow.Unix(), flipped)
		require.Equal(t, Invalid, v.Verify(body, h), "sig char %d", i)
	}
}

func TestVerify_FailsClosed(t *testing.T) {
	body := []byte(`{}`)
	good := newTestVerifier("whsec_test", DefaultTolerance)
	header := good.Sign(body, fixedNow)

	tests := []struct {
		name   string
		v      *Verifier
		header string
	}{
		{"missing header", good, ""},
		{"empty secret", newTestVerifier("", DefaultTolerance), header},
		{"wrong secret", newTestVerifier("other", DefaultTolerance), header},
		{"garbage", good, "not a signature"},
		{"no timestamp", good, header[strings.Index(header, ",")+1:]},
		{"no signature", good, fmt.Sprintf("t=%d", fixedNow.Unix())},
		{"non-hex signature", good, fmt.Sprintf("t=%d,v1=zzzz", fixedNow.Unix())},
		{"short signature", good, fmt.Sprintf("t=%d,v1=abcd", fixedNow.Unix())},
		{"bad timestamp", good, "t=yesterday,v1=" + strings.Repeat("0", 64)},
		{"duplicate timestamp", good, fmt.Sprintf("t=%d,%s", fixedNow.Unix(), header)},
		{"stale", good, good.Sign(body, fixedNow.Add(-10*time.Minute))},
		{"future", good, good.Sign(body, fixedNow.Add(10*time.Minute))},
		{"nil verifier", nil, header},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.Equal(t, Invalid, tt.v.Verify(body, tt.header))
			})
		})
	}
}

func TestVerify_ZeroToleranceSkipsTimestampWindow(t *testing.T) {
	v := newTestVerifier("whsec_test", 0)
	body := []byte(`{}`)
	assert.Equal(t, Valid, v.Verify(body, v.Sign(body, fixedNow.Add(-48*time.Hour))))
}

func TestVerify_AcceptsAnyMatchingV1(t *testing.T) {
	v := newTestVerifier("whsec_test", DefaultTolerance)
	body := []byte(`{}`)
	header := v.Sign(body, fixedNow)
	rotated := strings.Replace(header, ",v1=", ",v1="+strings.Repeat("ab", 32)+",v0=ignored,v1=", 1)
	assert.Equal(t, Valid, v.Verify(body, rotated))
}
