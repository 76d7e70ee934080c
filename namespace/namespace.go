// Package namespace negotiates which chains, methods and events a wallet
// session may use.
//
// A namespace groups chain identifiers under one family, e.g. "eip155" for
// EVM chains ("eip155:1" is Ethereum mainnet).
package namespace

import (
	"slices"
	"sort"
	"strings"
)

// Requirement is what a proposal asks for in one namespace.
type Requirement struct {
	Chains  []string `json:"chains,omitempty" toml:"chains"`
	Methods []string `json:"methods" toml:"methods"`
	Events  []string `json:"events" toml:"events"`
}

// Namespace is an approved (or supported) capability set for one namespace.
type Namespace struct {
	Chains   []string `json:"chains" toml:"chains"`
	Methods  []string `json:"methods" toml:"methods"`
	Events   []string `json:"events" toml:"events"`
	Accounts []string `json:"accounts" toml:"accounts"`
}

// Namespaces maps a namespace key ("eip155") to its capability set.
type Namespaces map[string]Namespace

// Relay describes the relay protocol a proposer wants to use. It is carried
// through negotiation untouched.
type Relay struct {
	Protocol string `json:"protocol"`
	Data     string `json:"data,omitempty"`
}

// Proposal is a transient connection request from a wallet peer.
type Proposal struct {
	RequiredNamespaces map[string]Requirement `json:"requiredNamespaces"`
	OptionalNamespaces map[string]Requirement `json:"optionalNamespaces,omitempty"`
	Relays             []Relay                `json:"relays,omitempty"`
}

// Clone returns a deep copy so callers can hand out snapshots.
func (n Namespaces) Clone() Namespaces {
	if n == nil {
		return nil
	}
	out := make(Namespaces, len(n))
	for key, ns := range n {
		out[key] = Namespace{
			Chains:   slices.Clone(ns.Chains),
			Methods:  slices.Clone(ns.Methods),
			Events:   slices.Clone(ns.Events),
			Accounts: slices.Clone(ns.Accounts),
		}
	}
	return out
}

// Keys returns the namespace keys in sorted order.
func (n Namespaces) Keys() []string {
	keys := make([]string, 0, len(n))
	for key := range n {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// AllowsMethod reports whether method is approved for chainID. An empty
// chainID matches any approved namespace.
func (n Namespaces) AllowsMethod(chainID, method string) bool {
	if chainID == "" {
		for _, ns := range n {
			if slices.Contains(ns.Methods, method) {
				return true
			}
		}
		return false
	}
	ns, ok := n[namespaceOf(chainID)]
	if !ok {
		return false
	}
	return slices.Contains(ns.Chains, chainID) && slices.Contains(ns.Methods, method)
}

// Accounts parses every bound account across all namespaces. Malformed
// entries are skipped.
func (n Namespaces) Accounts() []Account {
	var accounts []Account
	for _, key := range n.Keys() {
		for _, raw := range n[key].Accounts {
			acc, err := ParseAccount(raw)
			if err != nil {
				continue
			}
			accounts = append(accounts, acc)
		}
	}
	return accounts
}

// namespaceOf returns the namespace part of a chain id ("eip155:1" -> "eip155").
func namespaceOf(chainID string) string {
	key, _, _ := strings.Cut(chainID, ":")
	return key
}
