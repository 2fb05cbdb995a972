package filter

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFilter(t *testing.T) {
	f, err := New(File{
		Words:     []string{"darn", "heck"},
		Patterns:  []string{`b+a+d+`},
		Whitelist: []string{"bad"},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		in, want string
	}{
		{"well darn", "well ****"},
		{"DARN it", "**** it"},
		{"darned", "darned"},
		{"what the heck, darn", "what the ****, ****"},
		{"baaad idea", "***** idea"},
		{"bad idea", "bad idea"},
		{"clean line", "clean line"},
	}
	for _, tt := range tests {
		if got := f.Filter(tt.in); got != tt.want {
			t.Errorf("Filter(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFilter_Empty(t *testing.T) {
	f, err := New(File{})
	if err != nil {
		t.Fatal(err)
	}
	if got := f.Filter("anything"); got != "anything" {
		t.Errorf("Filter() = %q", got)
	}
	var nilFilter *Filter
	if got := nilFilter.Filter("x"); got != "x" {
		t.Errorf("nil Filter() = %q", got)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filter.yml")
	data := "words: [\"ärger\"]\nmask: \"#\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := f.Filter("so ein ärger"); got != "so ein #####" {
		t.Errorf("Filter() = %q", got)
	}

	if _, err := New(File{Patterns: []string{"("}}); err == nil {
		t.Error("New() accepted an invalid pattern")
	}
}
