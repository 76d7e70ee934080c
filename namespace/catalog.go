package namespace

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/BurntSushi/toml"
)

// Default returns the capability set served when no namespaces file is
// configured: Ethereum, Polygon and BNB Smart Chain.
func Default() Namespaces {
	return Namespaces{
		"eip155": {
			Chains:   []string{"eip155:1", "eip155:137", "eip155:56"},
			Methods:  []string{"eth_sendTransaction", "personal_sign", "eth_signTypedData"},
			Events:   []string{"accountsChanged", "chainChanged"},
			Accounts: []string{},
		},
	}
}

type catalogFile struct {
	Namespaces Namespaces `toml:"namespaces"`
}

// LoadFile reads a supported-namespaces TOML file:
//
//	[namespaces.eip155]
//	chains = ["eip155:1", "eip155:137"]
//	methods = ["personal_sign"]
//	events = ["accountsChanged"]
func LoadFile(path string) (Namespaces, error) {
	var f catalogFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("namespaces parse failed (%s): %w", path, err)
	}
	if err := Validate(f.Namespaces); err != nil {
		return nil, fmt.Errorf("namespaces invalid (%s): %w", path, err)
	}
	for key, ns := range f.Namespaces {
		if ns.Accounts == nil {
			ns.Accounts = []string{}
			f.Namespaces[key] = ns
		}
	}
	return f.Namespaces, nil
}

// Validate checks that a supported set is usable for negotiation.
func Validate(n Namespaces) error {
	if len(n) == 0 {
		return fmt.Errorf("no namespaces defined")
	}
	for _, key := range n.Keys() {
		ns := n[key]
		if strings.TrimSpace(key) == "" || strings.Contains(key, ":") {
			return fmt.Errorf("invalid namespace key %q", key)
		}
		if len(ns.Chains) == 0 {
			return fmt.Errorf("namespace %s has no chains", key)
		}
		for _, chain := range ns.Chains {
			if namespaceOf(chain) != key || !strings.Contains(chain, ":") {
				return fmt.Errorf("chain %q does not belong to namespace %s", chain, key)
			}
		}
	}
	return nil
}

// Catalog holds the current supported set. Reads are lock-free and always see
// a complete snapshot.
type Catalog struct {
	current atomic.Pointer[Namespaces]
}

func NewCatalog(initial Namespaces) *Catalog {
	c := &Catalog{}
	c.Store(initial)
	return c
}

// Supported returns a copy of the current supported set.
func (c *Catalog) Supported() Namespaces {
	return c.current.Load().Clone()
}

func (c *Catalog) Store(n Namespaces) {
	snapshot := n.Clone()
	c.current.Store(&snapshot)
}

// Reload replaces the catalog from path. On error the previous set is kept.
func (c *Catalog) Reload(path string) error {
	n, err := LoadFile(path)
	if err != nil {
		return err
	}
	c.Store(n)
	return nil
}
