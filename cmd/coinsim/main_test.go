package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRunDryRun(t *testing.T) {
	if code := run([]string{"-dry-run", "-datadir", t.TempDir()}); code != 0 {
		t.Fatalf("exit=%d, want 0", code)
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	cases := [][]string{
		{"-dry-run", "-bind", "nope"},
		{"-dry-run", "-log-level", "trace"},
		{"-dry-run", "-reward-puzzle-hash", "zz"},
		{"-dry-run", "-config", filepath.Join(t.TempDir(), "missing.json")},
		{"-no-such-flag"},
	}
	for _, args := range cases {
		if code := run(args); code != 2 {
			t.Fatalf("run(%v) exit=%d, want 2", args, code)
		}
	}
}

func TestRunConfigFileAndFlagOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coinsim.json")
	if err := os.WriteFile(path, []byte(`{"bind_addr":"nope"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if code := run([]string{"-dry-run", "-config", path}); code != 2 {
		t.Fatalf("file bind_addr must be validated, exit=%d", code)
	}
	if code := run([]string{"-dry-run", "--config=" + path, "-bind", "127.0.0.1:0"}); code != 0 {
		t.Fatalf("flag must override file, exit=%d", code)
	}
}

func TestConfigArg(t *testing.T) {
	cases := []struct {
		args []string
		want string
	}{
		{[]string{"-config", "a.json"}, "a.json"},
		{[]string{"--config=b.json", "-dry-run"}, "b.json"},
		{[]string{"-dry-run", "--", "-config", "c.json"}, ""},
		{[]string{"config", "d.json"}, ""},
	}
	for _, tc := range cases {
		if got := configArg(tc.args); got != tc.want {
			t.Fatalf("configArg(%v)=%q, want %q", tc.args, got, tc.want)
		}
	}
}
