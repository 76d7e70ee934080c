// Package user keeps the wallet-address records created when a browser
// reports a completed connection.
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrAlreadyExists  = errors.New("user already exists")
	ErrInvalidAddress = errors.New("invalid wallet address")
)

const referralPrefix = "BN"

type User struct {
	ID            string    `json:"id"`
	WalletAddress string    `json:"wallet_address"`
	ReferralCode  string    `json:"referral_code"`
	ReferredBy    string    `json:"referred_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Connection records that a wallet connected. Only the public address and
// the wallet kind are kept.
type Connection struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	WalletAddress string    `json:"wallet_address"`
	WalletKind    string    `json:"wallet_kind"`
	ConnectedAt   time.Time `json:"connected_at"`
}

type Store interface {
	// GetByWallet returns ErrNotFound when no user owns address.
	GetByWallet(ctx context.Context, address string) (User, error)
	// Create returns ErrAlreadyExists when the address is taken.
	Create(ctx context.Context, u User) error
	SaveConnection(ctx context.Context, c Connection) error
	// ListConnections returns the user's connections, newest first.
	ListConnections(ctx context.Context, userID string) ([]Connection, error)
}

// NormalizeAddress validates an EVM address and returns its checksum form.
func NormalizeAddress(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	return common.HexToAddress(raw).Hex(), nil
}

// NewReferralCode returns "BN" followed by the upper-case base36 of now in
// milliseconds.
func NewReferralCode(now time.Time) string {
	return referralPrefix + strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
}

// EnsureUser finds the user owning address or creates one. The bool reports
// whether a record was created. address must already be normalized.
func EnsureUser(ctx context.Context, store Store, address, referredBy string, now time.Time) (User, bool, error) {
	u, err := store.GetByWallet(ctx, address)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, false, err
	}

	u = User{
		ID:            uuid.Must(uuid.NewV7()).String(),
		WalletAddress: address,
		ReferralCode:  NewReferralCode(now),
		ReferredBy:    strings.TrimSpace(referredBy),
		CreatedAt:     now.UTC(),
	}
	if err := store.Create(ctx, u); err != nil {
		// Lost a race with a concurrent sync for the same wallet.
		if errors.Is(err, ErrAlreadyExists) {
			existing, getErr := store.GetByWallet(ctx, address)
			return existing, false, getErr
		}
		return User{}, false, err
	}
	return u, true, nil
}

// RecordConnection ensures the user exists and appends a connection record.
func RecordConnection(ctx context.Context, store Store, address, walletKind, referredBy string, now time.Time) (User, Connection, error) {
	u, created, err := EnsureUser(ctx, store, address, referredBy, now)
	if err != nil {
		return User{}, Connection{}, err
	}

	c := Connection{
		ID:            uuid.Must(uuid.NewV7()).String(),
		UserID:        u.ID,
		WalletAddress: address,
		WalletKind:    walletKind,
		ConnectedAt:   now.UTC(),
	}
	if err := store.SaveConnection(ctx, c); err != nil {
		return User{}, Connection{}, fmt.Errorf("save connection: %w", err)
	}

	if created {
		slog.Info("user created", "userId", u.ID, "referredBy", u.ReferredBy)
	}
	return u, c, nil
}
