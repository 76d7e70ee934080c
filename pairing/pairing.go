// Package pairing creates the one-shot handles a wallet scans to open a
// channel, and derives session keys once the wallet answers.
package pairing

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultRelayProtocol = "irn"
	DefaultTTL           = 5 * time.Minute

	protocolVersion = "2"
	keySize         = 32
)

var (
	ErrCreateFailed = errors.New("pairing creation failed")
	ErrInvalidURI   = errors.New("invalid pairing uri")
)

// Pairing is an unestablished channel. Expiry is advisory; the relay is
// responsible for refusing late proposals.
type Pairing struct {
	Topic  string    `json:"topic"`
	URI    string    `json:"uri"`
	SymKey string    `json:"-"`
	Expiry time.Time `json:"expiry"`
}

type Config struct {
	RelayProtocol string
	TTL           time.Duration
}

// Factory allocates pairings. It performs no I/O besides reading randomness.
type Factory struct {
	cfg  Config
	rand io.Reader
	now  func() time.Time
}

func NewFactory(cfg Config) *Factory {
	if cfg.RelayProtocol == "" {
		cfg.RelayProtocol = DefaultRelayProtocol
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Factory{cfg: cfg, rand: rand.Reader, now: time.Now}
}

// Create returns a fresh pairing with a random symmetric key. The topic is
// the hex sha256 of the key.
func (f *Factory) Create() (Pairing, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(f.rand, key); err != nil {
		return Pairing{}, fmt.Errorf("%w: %v", ErrCreateFailed, err)
	}

	symKey := hex.EncodeToString(key)
	topic := TopicFromKey(key)
	expiry := f.now().Add(f.cfg.TTL).Truncate(time.Second)

	return Pairing{
		Topic:  topic,
		URI:    formatURI(topic, f.cfg.RelayProtocol, symKey, expiry),
		SymKey: symKey,
		Expiry: expiry,
	}, nil
}

// TopicFromKey returns hex(sha256(key)).
func TopicFromKey(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:])
}

func formatURI(topic, relayProtocol, symKey string, expiry time.Time) string {
	q := url.Values{}
	q.Set("relay-protocol", relayProtocol)
	q.Set("symKey", symKey)
	q.Set("expiryTimestamp", strconv.FormatInt(expiry.Unix(), 10))
	return "wc:" + topic + "@" + protocolVersion + "?" + q.Encode()
}

// ParseURI is the inverse of the URI written by Create.
func ParseURI(raw string) (Pairing, string, error) {
	rest, ok := strings.CutPrefix(raw, "wc:")
	if !ok {
		return Pairing{}, "", fmt.Errorf("%w: missing wc: scheme", ErrInvalidURI)
	}
	head, query, ok := strings.Cut(rest, "?")
	if !ok {
		return Pairing{}, "", fmt.Errorf("%w: missing parameters", ErrInvalidURI)
	}
	topic, version, ok := strings.Cut(head, "@")
	if !ok || topic == "" || version != protocolVersion {
		return Pairing{}, "", fmt.Errorf("%w: bad topic or version %q", ErrInvalidURI, head)
	}

	q, err := url.ParseQuery(query)
	if err != nil {
		return Pairing{}, "", fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}

	symKey := q.Get("symKey")
	key, err := hex.DecodeString(symKey)
	if err != nil || len(key) != keySize {
		return Pairing{}, "", fmt.Errorf("%w: bad symKey", ErrInvalidURI)
	}
	if TopicFromKey(key) != topic {
		return Pairing{}, "", fmt.Errorf("%w: topic does not match symKey", ErrInvalidURI)
	}

	p := Pairing{Topic: topic, URI: raw, SymKey: symKey}
	if ts := q.Get("expiryTimestamp"); ts != "" {
		sec, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return Pairing{}, "", fmt.Errorf("%w: bad expiryTimestamp", ErrInvalidURI)
		}
		p.Expiry = time.Unix(sec, 0)
	}
	return p, q.Get("relay-protocol"), nil
}

// Expired reports whether the pairing is past its validity window at now.
func (p Pairing) Expired(now time.Time) bool {
	return !p.Expiry.IsZero() && now.After(p.Expiry)
}
