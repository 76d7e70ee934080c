package namespace

import (
	"errors"
	"slices"
	"testing"
)

func TestNegotiate_IntersectsChains(t *testing.T) {
	p := Proposal{RequiredNamespaces: map[string]Requirement{
		"eip155": {Chains: []string{"eip155:1", "eip155:999"}, Methods: []string{"personal_sign"}},
	}}

	approved, err := Negotiate(p, Default())
	if err != nil {
		t.Fatalf("Negotiate failed: %v", err)
	}

	ns, ok := approved["eip155"]
	if !ok {
		t.Fatal("expected eip155 to be approved")
	}
	if !slices.Equal(ns.Chains, []string{"eip155:1"}) {
		t.Errorf("expected chains [eip155:1], got %v", ns.Chains)
	}
	if ns.Accounts == nil || len(ns.Accounts) != 0 {
		t.Errorf("expected empty non-nil accounts, got %#v", ns.Accounts)
	}
}

func TestNegotiate_GrantsFullSupportedSurface(t *testing.T) {
	supported := Default()
	p := Proposal{RequiredNamespaces: map[string]Requirement{
		"eip155": {
			Chains:  []string{"eip155:137"},
			Methods: []string{"personal_sign", "wallet_switchEthereumChain"},
			Events:  []string{"disconnect"},
		},
	}}

	approved, err := Negotiate(p, supported)
	if err != nil {
		t.Fatalf("Negotiate failed: %v", err)
	}

	got := approved["eip155"]
	if !slices.Equal(got.Methods, supported["eip155"].Methods) {
		t.Errorf("methods = %v, want %v", got.Methods, supported["eip155"].Methods)
	}
	if !slices.Equal(got.Events, supported["eip155"].Events) {
		t.Errorf("events = %v, want %v", got.Events, supported["eip155"].Events)
	}
}

func TestNegotiate_Failures(t *testing.T) {
	tests := []struct {
		name       string
		required   map[string]Requirement
		wantReason string
	}{
		{
			name:       "no required namespaces",
			required:   nil,
			wantReason: ReasonNoRequiredNamespaces,
		},
		{
			name:       "disjoint chains",
			required:   map[string]Requirement{"eip155": {Chains: []string{"eip155:999"}}},
			wantReason: ReasonUnsupportedChains,
		},
		{
			name:       "unknown namespace",
			required:   map[string]Requirement{"solana": {Chains: []string{"solana:mainnet"}}},
			wantReason: ReasonUnsupportedNamespace,
		},
		{
			name: "one unknown namespace fails the whole proposal",
			required: map[string]Requirement{
				"eip155": {Chains: []string{"eip155:1"}},
				"cosmos": {Chains: []string{"cosmos:cosmoshub-4"}},
			},
			wantReason: ReasonUnsupportedNamespace,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			approved, err := Negotiate(Proposal{RequiredNamespaces: tt.required}, Default())
			if approved != nil {
				t.Errorf("expected no approval, got %v", approved)
			}
			if !errors.Is(err, ErrNegotiationFailed) {
				t.Fatalf("expected ErrNegotiationFailed, got %v", err)
			}
			var negErr *NegotiationError
			if !errors.As(err, &negErr) {
				t.Fatalf("expected *NegotiationError, got %T", err)
			}
			if negErr.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", negErr.Reason, tt.wantReason)
			}
		})
	}
}

func TestNegotiate_IndependentNamespaces(t *testing.T) {
	supported := Default()
	supported["solana"] = Namespace{
		Chains:  []string{"solana:mainnet"},
		Methods: []string{"solana_signMessage"},
		Events:  []string{},
	}

	p := Proposal{RequiredNamespaces: map[string]Requirement{
		"eip155": {Chains: []string{"eip155:56"}},
		"solana": {Chains: []string{"solana:devnet"}},
	}}

	approved, err := Negotiate(p, supported)
	if err != nil {
		t.Fatalf("Negotiate failed: %v", err)
	}
	if _, ok := approved["solana"]; ok {
		t.Error("expected solana to be dropped")
	}
	if !slices.Equal(approved["eip155"].Chains, []string{"eip155:56"}) {
		t.Errorf("unexpected eip155 chains %v", approved["eip155"].Chains)
	}
}

func TestNegotiate_ChainKeyedRequirement(t *testing.T) {
	p := Proposal{RequiredNamespaces: map[string]Requirement{
		"eip155:137": {Methods: []string{"personal_sign"}},
		"eip155:1":   {Methods: []string{"personal_sign"}},
	}}

	approved, err := Negotiate(p, Default())
	if err != nil {
		t.Fatalf("Negotiate failed: %v", err)
	}

	chains := approved["eip155"].Chains
	if len(chains) != 2 || !slices.Contains(chains, "eip155:1") || !slices.Contains(chains, "eip155:137") {
		t.Errorf("unexpected chains %v", chains)
	}
}

func TestNegotiate_DoesNotAliasSupported(t *testing.T) {
	supported := Default()
	p := Proposal{RequiredNamespaces: map[string]Requirement{"eip155": {Chains: []string{"eip155:1"}}}}

	approved, err := Negotiate(p, supported)
	if err != nil {
		t.Fatalf("Negotiate failed: %v", err)
	}
	ns := approved["eip155"]
	ns.Methods[0] = "mutated"

	if supported["eip155"].Methods[0] == "mutated" {
		t.Error("approved methods share backing array with supported set")
	}
}

func TestNamespaces_AllowsMethod(t *testing.T) {
	n := Namespaces{"eip155": {
		Chains:  []string{"eip155:1"},
		Methods: []string{"personal_sign"},
	}}

	if !n.AllowsMethod("eip155:1", "personal_sign") {
		t.Error("expected personal_sign on eip155:1")
	}
	if n.AllowsMethod("eip155:137", "personal_sign") {
		t.Error("chain eip155:137 was not approved")
	}
	if n.AllowsMethod("eip155:1", "eth_sign") {
		t.Error("eth_sign was not approved")
	}
	if !n.AllowsMethod("", "personal_sign") {
		t.Error("empty chain id should match any namespace")
	}
}
