package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigInitValidateShow(t *testing.T) {
	base := t.TempDir()
	t.Setenv("HOME", base)
	t.Setenv("FEEDPLAY_STATE_DIR", filepath.Join(base, "state"))
	target := filepath.Join(base, "conf", "feedplay.toml")

	out, err := runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("init output missing path:\n%s", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample not written: %v", err)
	}
	if _, err := runCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}
	if _, err := runCLI(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("init --overwrite: %v", err)
	}

	out, err = runCLI(t, "config", "validate", "-c", target)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") || !strings.Contains(out, filepath.Join(base, "state")) {
		t.Fatalf("unexpected validate output:\n%s", out)
	}

	out, err = runCLI(t, "config", "show", "-c", target)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	for _, section := range []string{"[playback]", "[prefetch]", "max_concurrent = 2"} {
		if !strings.Contains(out, section) {
			t.Fatalf("show output missing %q:\n%s", section, out)
		}
	}
}

func TestConfigValidateRejectsBadValues(t *testing.T) {
	base := t.TempDir()
	t.Setenv("HOME", base)
	path := filepath.Join(base, "bad.toml")
	body := "[paths]\nstate_dir = \"" + filepath.Join(base, "state") + "\"\n[prefetch]\nmax_concurrent = 0\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := runCLI(t, "config", "validate", "-c", path)
	if err == nil || !strings.Contains(err.Error(), "prefetch.max_concurrent") {
		t.Fatalf("expected max_concurrent error, got %v", err)
	}
}

func TestLogLevelFlagOverride(t *testing.T) {
	configPath, _ := writeTestConfig(t)
	if _, err := runCLI(t, "config", "show", "--log-level", "loud", "-c", configPath); err == nil {
		t.Fatal("expected invalid log level to fail validation")
	}
	out, err := runCLI(t, "config", "show", "--log-level", "debug", "-c", configPath)
	if err != nil || !strings.Contains(out, "debug") {
		t.Fatalf("override not applied: %v\n%s", err, out)
	}
}
