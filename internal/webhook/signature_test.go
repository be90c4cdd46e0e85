package webhook_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awd2211/lnk.day-sub003/internal/webhook"
)

func TestSignVerify_RoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		secret string
		body   string
	}{
		{"simple", "whsec_abc123", `{"event":"link.created"}`},
		{"empty body", "whsec_abc123", ""},
		{"unicode", "秘密", `{"title":"日本語リンク"}`},
		{"long body", "s", strings.Repeat(`{"k":"v"}`, 500)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig := webhook.Sign(tc.secret, []byte(tc.body))
			assert.True(t, strings.HasPrefix(sig, "sha256="))
			assert.True(t, webhook.Verify(tc.secret, []byte(tc.body), sig))
		})
	}
}

func TestVerify_RejectsMutations(t *testing.T) {
	secret := "whsec_abc123"
	body := []byte(`{"event":"link.created","data":{"link_id":"abc"}}`)
	sig := webhook.Sign(secret, body)

	// Any single-byte mutation of the body invalidates the signature.
	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01
		assert.False(t, webhook.Verify(secret, mutated, sig), "body byte %d", i)
	}

	// Any single-byte mutation of the signature fails verification.
	for i := range sig {
		mutated := []byte(sig)
		mutated[i] ^= 0x01
		assert.False(t, webhook.Verify(secret, body, string(mutated)), "sig byte %d", i)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	body := []byte(`{"event":"link.created"}`)
	sig := webhook.Sign("secret-a", body)
	require.False(t, webhook.Verify("secret-b", body, sig))
}
