package channelauth

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageSigner_RejectsEmptySecret(t *testing.T) {
	_, err := NewMessageSigner(nil)
	assert.Error(t, err)
}

func TestSignVerify_RoundTripStripsSeqAndHmac(t *testing.T) {
	s, err := NewMessageSigner([]byte("topsecret"))
	require.NoError(t, err)

	signed, err := s.Sign(map[string]any{"jsonrpc": "2.0", "method": "ping"})
	require.NoError(t, err)

	var withSeq map[string]any
	require.NoError(t, json.Unmarshal(signed, &withSeq))
	assert.Contains(t, withSeq, "_seq")
	assert.Contains(t, withSeq, "_hmac")

	out, err := s.Verify(signed)
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal(out, &result))
	assert.NotContains(t, result, "_seq")
	assert.NotContains(t, result, "_hmac")
	assert.Equal(t, "ping", result["method"])
}

func TestVerify_RejectsTamperedPayload(t *testing.T) {
	s, err := NewMessageSigner([]byte("topsecret"))
	require.NoError(t, err)

	signed, err := s.Sign(map[string]any{"jsonrpc": "2.0", "method": "ping"})
	require.NoError(t, err)

	var obj map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(signed, &obj))
	obj["method"] = json.RawMessage(`"pong"`)
	tampered, err := json.Marshal(obj)
	require.NoError(t, err)

	_, err = s.Verify(tampered)
	assert.Error(t, err)
}

func TestVerify_RejectsReplay(t *testing.T) {
	s, err := NewMessageSigner([]byte("topsecret"))
	require.NoError(t, err)

	signed, err := s.Sign(map[string]any{"jsonrpc": "2.0", "method": "ping"})
	require.NoError(t, err)

	_, err = s.Verify(signed)
	require.NoError(t, err)

	_, err = s.Verify(signed)
	assert.Error(t, err, "replaying the same _seq must be rejected")
}

func TestVerify_RejectsOutOfOrderSequence(t *testing.T) {
	s, err := NewMessageSigner([]byte("topsecret"))
	require.NoError(t, err)

	first, err := s.Sign(map[string]any{"method": "a"})
	require.NoError(t, err)
	second, err := s.Sign(map[string]any{"method": "b"})
	require.NoError(t, err)

	_, err = s.Verify(second)
	require.NoError(t, err)

	_, err = s.Verify(first)
	assert.Error(t, err, "a lower _seq than the last accepted one must be rejected")
}

func TestInit_ResetsSequenceState(t *testing.T) {
	s, err := NewMessageSigner([]byte("topsecret"))
	require.NoError(t, err)

	signed, err := s.Sign(map[string]any{"method": "a"})
	require.NoError(t, err)
	_, err = s.Verify(signed)
	require.NoError(t, err)

	s.Init()
	s.Init() // idempotent

	signed2, err := s.Sign(map[string]any{"method": "b"})
	require.NoError(t, err)
	_, err = s.Verify(signed2)
	require.NoError(t, err, "after Init, sequence counters restart from zero on both sides")
}

func TestDifferentSecretsFailVerification(t *testing.T) {
	a, err := NewMessageSigner([]byte("secret-a"))
	require.NoError(t, err)
	b, err := NewMessageSigner([]byte("secret-b"))
	require.NoError(t, err)

	signed, err := a.Sign(map[string]any{"method": "ping"})
	require.NoError(t, err)

	_, err = b.Verify(signed)
	assert.Error(t, err)
}
