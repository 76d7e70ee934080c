package namespace

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// ErrNegotiationFailed is matched by every *NegotiationError.
var ErrNegotiationFailed = errors.New("negotiation failed")

// Rejection reasons carried by NegotiationError.
const (
	ReasonNoRequiredNamespaces = "no required namespaces"
	ReasonUnsupportedNamespace = "unsupported namespace"
	ReasonUnsupportedChains    = "unsupported chains"
)

// NegotiationError explains why a proposal could not be approved.
type NegotiationError struct {
	Reason    string
	Namespace string
}

func (e *NegotiationError) Error() string {
	if e.Namespace == "" {
		return "negotiation failed: " + e.Reason
	}
	return fmt.Sprintf("negotiation failed: %s: %s", e.Reason, e.Namespace)
}

func (e *NegotiationError) Unwrap() error { return ErrNegotiationFailed }

// Negotiate computes the approved namespaces for proposal.
//
// Every required namespace key must be supported or the whole proposal is
// rejected. Within a supported namespace the approved chains are the requested
// chains that are also supported; a namespace with no overlap is dropped.
// Approved methods and events are always the full supported lists. Accounts
// start empty and are filled in by the wallet.
func Negotiate(p Proposal, supported Namespaces) (Namespaces, error) {
	required := normalize(p.RequiredNamespaces)
	if len(required) == 0 {
		return nil, &NegotiationError{Reason: ReasonNoRequiredNamespaces}
	}

	keys := make([]string, 0, len(required))
	for key := range required {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if _, ok := supported[key]; !ok {
			return nil, &NegotiationError{Reason: ReasonUnsupportedNamespace, Namespace: key}
		}
	}

	approved := make(Namespaces, len(keys))
	var lastRejected string
	for _, key := range keys {
		sup := supported[key]
		chains := intersect(required[key].Chains, sup.Chains)
		if len(chains) == 0 {
			lastRejected = key
			continue
		}
		approved[key] = Namespace{
			Chains:   chains,
			Methods:  slices.Clone(sup.Methods),
			Events:   slices.Clone(sup.Events),
			Accounts: []string{},
		}
	}

	if len(approved) == 0 {
		return nil, &NegotiationError{Reason: ReasonUnsupportedChains, Namespace: lastRejected}
	}
	return approved, nil
}

// normalize folds chain-keyed entries ("eip155:1": {...}) into their
// namespace so both wire shapes negotiate the same way.
func normalize(in map[string]Requirement) map[string]Requirement {
	out := make(map[string]Requirement, len(in))
	for key, req := range in {
		ns := key
		chains := req.Chains
		if strings.Contains(key, ":") {
			ns = namespaceOf(key)
			chains = append([]string{key}, req.Chains...)
		}
		cur := out[ns]
		cur.Chains = append(cur.Chains, chains...)
		cur.Methods = append(cur.Methods, req.Methods...)
		cur.Events = append(cur.Events, req.Events...)
		out[ns] = cur
	}
	return out
}

// intersect keeps the requested order and drops duplicates.
func intersect(requested, supported []string) []string {
	out := make([]string, 0, len(requested))
	for _, chain := range requested {
		if slices.Contains(supported, chain) && !slices.Contains(out, chain) {
			out = append(out, chain)
		}
	}
	return out
}
