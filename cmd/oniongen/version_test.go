package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestFirstNonEmpty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		fallback string
		values   []string
		want     string
	}{
		{name: "no values", fallback: "unknown", want: "unknown"},
		{name: "all empty", fallback: "unknown", values: []string{"", ""}, want: "unknown"},
		{name: "first set value wins", fallback: "unknown", values: []string{"", "v1.0.0", "v2.0.0"}, want: "v1.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := firstNonEmpty(tt.fallback, tt.values...); got != tt.want {
				t.Errorf("firstNonEmpty() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	cmd := NewVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := out.String()
	for _, want := range []string{"oniongen version " + getVersion(), "commit:", "built:"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got:\n%s", want, output)
		}
	}
}

func TestGetVersion(t *testing.T) {
	t.Parallel()

	if getVersion() == "" {
		t.Error("getVersion() should never be empty")
	}
	if getCommit() == "" || getDate() == "" {
		t.Error("commit and date should fall back to a placeholder")
	}
}
