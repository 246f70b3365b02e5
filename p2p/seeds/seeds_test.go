package seeds

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

type fakeResolver struct {
	hosts map[string][]string
}

func (r *fakeResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	addrs, ok := r.hosts[host]
	if !ok {
		return nil, fmt.Errorf("no such host %s", host)
	}
	return addrs, nil
}

func writeSeedFile(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "peers.txt")
	if err := os.WriteFile(path, []byte(lines), 0o600); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	return path
}

func TestLoadParsesAddressesAndComments(t *testing.T) {
	path := writeSeedFile(t, "10.0.0.1\n\n# comment\n10.0.0.2\n10.0.0.1\n")
	addrs, err := Load(path, &fakeResolver{}, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(addrs) != 2 || addrs[0] != "10.0.0.1" || addrs[1] != "10.0.0.2" {
		t.Fatalf("unexpected addresses %v", addrs)
	}
}

func TestLoadResolvesHostnames(t *testing.T) {
	path := writeSeedFile(t, "seed.example.org\nbroken.example.org\n10.0.0.3\n")
	resolver := &fakeResolver{hosts: map[string][]string{
		"seed.example.org": {"192.0.2.10", "192.0.2.11"},
	}}
	addrs, err := Load(path, resolver, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"192.0.2.10", "192.0.2.11", "10.0.0.3"}
	if len(addrs) != len(want) {
		t.Fatalf("expected %v got %v", want, addrs)
	}
	for i := range want {
		if addrs[i] != want[i] {
			t.Fatalf("expected %v got %v", want, addrs)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.txt"), &fakeResolver{}, nil)
	if !os.IsNotExist(err) {
		t.Fatalf("expected a not-exist error got %v", err)
	}
}
