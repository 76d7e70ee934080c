package namespace

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestParseAccount(t *testing.T) {
	acc, err := ParseAccount("eip155:1:0x52908400098527886e0f7030069857d2e4169ee7")
	if err != nil {
		t.Fatalf("ParseAccount failed: %v", err)
	}
	if acc.Namespace != "eip155" || acc.Reference != "1" {
		t.Errorf("unexpected chain parts: %+v", acc)
	}
	if acc.Address != "0x52908400098527886E0F7030069857D2E4169EE7" {
		t.Errorf("expected checksum address, got %s", acc.Address)
	}
	if acc.ChainID() != "eip155:1" {
		t.Errorf("ChainID = %s", acc.ChainID())
	}
	if acc.String() != "eip155:1:0x52908400098527886E0F7030069857D2E4169EE7" {
		t.Errorf("String = %s", acc.String())
	}
}

func TestParseAccount_Invalid(t *testing.T) {
	for _, raw := range []string{
		"",
		"eip155:1",
		"eip155::0x52908400098527886E0F7030069857D2E4169EE7",
		"eip155:1:not-an-address",
		"a:b:c:d",
	} {
		if _, err := ParseAccount(raw); !errors.Is(err, ErrInvalidAccount) {
			t.Errorf("ParseAccount(%q) = %v, want ErrInvalidAccount", raw, err)
		}
	}
}

func TestParseAccount_NonEVMKeepsAddress(t *testing.T) {
	acc, err := ParseAccount("solana:mainnet:7S3P4HxJpyyigGzodYwHtCxZyUQe9JiBMHyRWXArAaKv")
	if err != nil {
		t.Fatalf("ParseAccount failed: %v", err)
	}
	if acc.Address != "7S3P4HxJpyyigGzodYwHtCxZyUQe9JiBMHyRWXArAaKv" {
		t.Errorf("address rewritten: %s", acc.Address)
	}
}

func TestNamespaces_AccountsSkipsMalformed(t *testing.T) {
	n := Namespaces{"eip155": {Accounts: []string{
		"eip155:1:0x52908400098527886E0F7030069857D2E4169EE7",
		"garbage",
	}}}

	accounts := n.Accounts()
	if len(accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(accounts))
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "namespaces.toml")
	content := `
[namespaces.eip155]
chains = ["eip155:1", "eip155:10"]
methods = ["personal_sign"]
events = ["chainChanged"]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	n, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if !slices.Equal(n["eip155"].Chains, []string{"eip155:1", "eip155:10"}) {
		t.Errorf("unexpected chains %v", n["eip155"].Chains)
	}
	if n["eip155"].Accounts == nil {
		t.Error("expected accounts to default to empty slice")
	}
}

func TestLoadFile_RejectsForeignChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "namespaces.toml")
	content := `
[namespaces.eip155]
chains = ["solana:mainnet"]
methods = []
events = []
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for chain outside namespace")
	}
}

func TestCatalog_ReloadKeepsPreviousOnError(t *testing.T) {
	c := NewCatalog(Default())
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("not = [valid"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := c.Reload(bad); err == nil {
		t.Fatal("expected reload error")
	}
	if len(c.Supported()["eip155"].Chains) != 3 {
		t.Errorf("catalog changed after failed reload: %v", c.Supported())
	}
}

func TestCatalog_SupportedIsSnapshot(t *testing.T) {
	c := NewCatalog(Default())
	snap := c.Supported()
	snap["eip155"].Chains[0] = "eip155:5"

	if c.Supported()["eip155"].Chains[0] != "eip155:1" {
		t.Error("mutating a snapshot changed the catalog")
	}
}
