package pairing

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// SessionKey is the outcome of answering a proposal: our public key goes back
// to the proposer, the topic names the new session.
type SessionKey struct {
	Topic     string
	SymKey    string
	PublicKey string
}

// NewSessionKey runs X25519 against the proposer's public key and expands the
// shared secret with HKDF-SHA256. Pass nil for r to use crypto/rand.
func NewSessionKey(peerPublicHex string, r io.Reader) (SessionKey, error) {
	if r == nil {
		r = rand.Reader
	}

	peer, err := hex.DecodeString(peerPublicHex)
	if err != nil || len(peer) != curve25519.PointSize {
		return SessionKey{}, fmt.Errorf("invalid peer public key")
	}

	priv := make([]byte, curve25519.ScalarSize)
	if _, err := io.ReadFull(r, priv); err != nil {
		return SessionKey{}, fmt.Errorf("generate private key: %w", err)
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return SessionKey{}, fmt.Errorf("derive public key: %w", err)
	}

	shared, err := curve25519.X25519(priv, peer)
	if err != nil {
		return SessionKey{}, fmt.Errorf("key agreement: %w", err)
	}

	sym := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, nil, nil), sym); err != nil {
		return SessionKey{}, fmt.Errorf("expand shared secret: %w", err)
	}

	return SessionKey{
		Topic:     TopicFromKey(sym),
		SymKey:    hex.EncodeToString(sym),
		PublicKey: hex.EncodeToString(pub),
	}, nil
}

// GenerateKeyPair returns a hex X25519 key pair. Used by wallet-side tools
// and tests to play the proposer.
func GenerateKeyPair(r io.Reader) (priv, pub string, err error) {
	if r == nil {
		r = rand.Reader
	}
	k := make([]byte, curve25519.ScalarSize)
	if _, err := io.ReadFull(r, k); err != nil {
		return "", "", err
	}
	p, err := curve25519.X25519(k, curve25519.Basepoint)
	if err != nil {
		return "", "", err
	}
	return hex.EncodeToString(k), hex.EncodeToString(p), nil
}

// SharedTopic derives the session topic from the proposer's side, given its
// private key and the responder's public key. It matches NewSessionKey.
func SharedTopic(privHex, peerPublicHex string) (string, error) {
	priv, err := hex.DecodeString(privHex)
	if err != nil {
		return "", err
	}
	peer, err := hex.DecodeString(peerPublicHex)
	if err != nil {
		return "", err
	}
	shared, err := curve25519.X25519(priv, peer)
	if err != nil {
		return "", err
	}
	sym := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, nil, nil), sym); err != nil {
		return "", err
	}
	return TopicFromKey(sym), nil
}

// NewOpaqueSessionKey returns a random session key for a proposer that sent
// no public key. PublicKey is empty. Pass nil for r to use crypto/rand.
func NewOpaqueSessionKey(r io.Reader) (SessionKey, error) {
	if r == nil {
		r = rand.Reader
	}
	sym := make([]byte, keySize)
	if _, err := io.ReadFull(r, sym); err != nil {
		return SessionKey{}, fmt.Errorf("generate session key: %w", err)
	}
	return SessionKey{
		Topic:  TopicFromKey(sym),
		SymKey: hex.EncodeToString(sym),
	}, nil
}
