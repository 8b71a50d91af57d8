package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZentaChain/zentalk-collab/pkg/crypto"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out.String(), "protocol 1") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestKeygenCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "signing.pem")

	run := func(args ...string) error {
		root := rootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs(append([]string{"keygen", "--out", path}, args...))
		return root.Execute()
	}

	if err := run(); err != nil {
		t.Fatalf("keygen: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read key: %v", err)
	}
	if _, err := crypto.ImportSigningKeyPEM(data); err != nil {
		t.Fatalf("written key does not parse: %v", err)
	}

	if err := run(); err == nil {
		t.Error("keygen should refuse to overwrite without --force")
	}
	if err := run("--force"); err != nil {
		t.Fatalf("keygen --force: %v", err)
	}
}
