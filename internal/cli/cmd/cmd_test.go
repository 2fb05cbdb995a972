package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const globalUnit = `
Bindings:
  Prefix: ["!"]
Formats:
  - condition: 'perm("vip.tag")'
    priority: 10
    prefix:
      tag:
        text: "&6[VIP] "
      name:
        text: "{{.sender.name}}: "
    msg:
      default-color: "&f"
  - priority: 100
    prefix:
      name:
        text: "{{.sender.name}}: "
    msg:
      default-color: "&f"
Console:
  - prefix:
      tag:
        text: "[G] "
    msg:
      default-color: "&7"
`

func writeUnits(t *testing.T, units map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range units {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// execute runs chatctl with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	jsonOutput = false
	serverURL = ""
	validateFunctions = ""
	renderOpts.dir, renderOpts.functions, renderOpts.receiver = "", "", ""
	renderOpts.channel, renderOpts.sender, renderOpts.world = "Normal", "Console", "world"
	renderOpts.perms = nil
	renderOpts.console, renderOpts.private, renderOpts.ansi = false, false, false

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	cfgPath := filepath.Join(t.TempDir(), "cli.json")
	rootCmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := rootCmd.Execute()
	return stdout.String(), err
}

func TestRender(t *testing.T) {
	dir := writeUnits(t, map[string]string{"Global.yml": globalUnit})

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "default format",
			args: []string{"--sender", "alice", "hi there"},
			want: "alice: hi there\n",
		},
		{
			name: "permission picks vip format",
			args: []string{"--sender", "bob", "--perm", "vip.*", "hi"},
			want: "[VIP] bob: hi\n",
		},
		{
			name: "console formats",
			args: []string{"--console", "hi"},
			want: "[G] hi\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"render", "--dir", dir, "--channel", "Global"}, tt.args...)
			got, err := execute(t, args...)
			if err != nil {
				t.Fatalf("render: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRender_UnknownChannel(t *testing.T) {
	dir := writeUnits(t, map[string]string{"Global.yml": globalUnit})
	if _, err := execute(t, "render", "--dir", dir, "--channel", "Nope", "hi"); err == nil {
		t.Fatal("expected error for unknown channel")
	}
}

func TestValidate(t *testing.T) {
	dir := writeUnits(t, map[string]string{
		"Global.yml": globalUnit,
		"Broken.yml": "Formats: [",
	})

	got, err := execute(t, "validate", "--json", dir)
	if err == nil {
		t.Fatal("expected validation failure")
	}

	var result struct {
		Channels []string `json:"channels"`
		Errors   []string `json:"errors"`
	}
	if err := json.Unmarshal([]byte(got), &result); err != nil {
		t.Fatalf("decode %q: %v", got, err)
	}
	if diff := cmp.Diff([]string{"Global"}, result.Channels); diff != "" {
		t.Errorf("channels mismatch (-want +got):\n%s", diff)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "Broken") {
		t.Errorf("errors = %v, want one error naming Broken", result.Errors)
	}

	clean := writeUnits(t, map[string]string{"Global.yml": globalUnit})
	if _, err := execute(t, "validate", clean); err != nil {
		t.Errorf("validate clean dir: %v", err)
	}
}

func TestChannels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/channels" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"channels":[{"id":"Global","file":"Global.yml","range":"ALL","prefix":["!"],"proxy":true,"listeners":3}],"count":1}`))
	}))
	defer srv.Close()

	got, err := execute(t, "--server", srv.URL, "channels")
	if err != nil {
		t.Fatalf("channels: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want header and one row:\n%s", len(lines), got)
	}
	if diff := cmp.Diff([]string{"Global", "public", "ALL", "!", "true", "3"}, strings.Fields(lines[1])); diff != "" {
		t.Errorf("row mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigSet(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "cli.json")
	if _, err := execute(t, "--config", cfgPath, "config", "set", "server", "http://chat:9000"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	got, err := execute(t, "--config", cfgPath, "--json", "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	var shown map[string]string
	if err := json.Unmarshal([]byte(got), &shown); err != nil {
		t.Fatalf("decode %q: %v", got, err)
	}
	if shown["server"] != "http://chat:9000" {
		t.Errorf("server = %q, want http://chat:9000", shown["server"])
	}
}
