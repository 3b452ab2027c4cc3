// Package channelauth implements MessageSigner, a minimal HMAC signer/
// verifier for out-of-band channels (e.g. a sideband control socket) that
// carry JSON-RPC messages but sit outside the MCP transports themselves.
// It is deliberately small: sign/verify plus monotonic sequence-number
// replay protection, nothing else.
package channelauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// MessageSigner signs outgoing JSON-RPC messages with an HMAC-SHA256 tag
// and a strictly increasing sequence number, and verifies incoming ones.
// lastRecvSeq tracks the highest sequence number accepted so far, per the
// single shared secret this signer holds; a signer is not safe to share
// across independent peers that should have independent replay windows.
type MessageSigner struct {
	secret []byte

	mu          sync.Mutex
	sendSeq     int64
	lastRecvSeq int64
	initialized bool
}

// NewMessageSigner builds a signer around secret. secret must not be
// empty; an empty secret would make every HMAC predictable.
func NewMessageSigner(secret []byte) (*MessageSigner, error) {
	if len(secret) == 0 {
		return nil, errors.New("channelauth: secret must not be empty")
	}
	cp := make([]byte, len(secret))
	copy(cp, secret)
	return &MessageSigner{secret: cp}, nil
}

// Init resets the signer's send/receive sequence counters. It is
// idempotent: every call resets both counters to zero, so repeated calls
// converge on the same state rather than compounding.
func (s *MessageSigner) Init() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendSeq = 0
	s.lastRecvSeq = 0
	s.initialized = true
}

// Sign marshals message, appends a fresh "_seq" and "_hmac" field, and
// returns the signed JSON. message must marshal to a JSON object (a map
// or struct), since "_seq"/"_hmac" are injected as object fields.
func (s *MessageSigner) Sign(message any) ([]byte, error) {
	body, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("channelauth: marshal message: %w", err)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("channelauth: message must be a JSON object: %w", err)
	}

	s.mu.Lock()
	s.sendSeq++
	seq := s.sendSeq
	s.mu.Unlock()

	seqJSON, _ := json.Marshal(seq)
	obj["_seq"] = seqJSON

	canonical, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("channelauth: marshal with seq: %w", err)
	}
	tag := s.tag(canonical)
	tagJSON, _ := json.Marshal(tag)
	obj["_hmac"] = tagJSON

	return json.Marshal(obj)
}

// Verify checks the HMAC tag and the strict-monotonicity invariant on
// "_seq", then returns the original message with "_seq"/"_hmac" stripped.
// It accepts iff the signature verifies AND _seq > lastRecvSeq; on
// acceptance it advances lastRecvSeq to _seq.
func (s *MessageSigner) Verify(signed []byte) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(signed, &obj); err != nil {
		return nil, fmt.Errorf("channelauth: malformed message: %w", err)
	}

	tagJSON, ok := obj["_hmac"]
	if !ok {
		return nil, errors.New("channelauth: missing _hmac")
	}
	var tag string
	if err := json.Unmarshal(tagJSON, &tag); err != nil {
		return nil, errors.New("channelauth: malformed _hmac")
	}

	seqJSON, ok := obj["_seq"]
	if !ok {
		return nil, errors.New("channelauth: missing _seq")
	}
	var seq int64
	if err := json.Unmarshal(seqJSON, &seq); err != nil {
		return nil, errors.New("channelauth: malformed _seq")
	}

	withoutTag := make(map[string]json.RawMessage, len(obj)-1)
	for k, v := range obj {
		if k == "_hmac" {
			continue
		}
		withoutTag[k] = v
	}
	canonical, err := json.Marshal(withoutTag)
	if err != nil {
		return nil, fmt.Errorf("channelauth: re-marshal for verify: %w", err)
	}
	expected := s.tag(canonical)
	if !hmac.Equal([]byte(expected), []byte(tag)) {
		return nil, errors.New("channelauth: signature mismatch")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.lastRecvSeq {
		return nil, fmt.Errorf("channelauth: replayed or out-of-order sequence %d (last accepted %d)", seq, s.lastRecvSeq)
	}
	s.lastRecvSeq = seq

	delete(withoutTag, "_seq")
	return json.Marshal(withoutTag)
}

func (s *MessageSigner) tag(data []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}
