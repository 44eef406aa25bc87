package main

import (
	"bytes"
	"testing"
)

func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()

	if cmd.Use != "oniongen" {
		t.Errorf("expected Use 'oniongen', got %q", cmd.Use)
	}
	if cmd.PersistentFlags().Lookup("verbose") == nil {
		t.Error("expected verbose persistent flag")
	}

	for _, name := range []string{"generate", "list", "probe", "init", "version"} {
		t.Run("has "+name+" subcommand", func(t *testing.T) {
			t.Parallel()
			found := false
			for _, sub := range cmd.Commands() {
				if sub.Name() == name {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("expected %s subcommand", name)
			}
		})
	}
}

func TestGetVerboseFlag(t *testing.T) {
	t.Parallel()

	t.Run("reads the persistent flag from a subcommand", func(t *testing.T) {
		t.Parallel()

		root := NewRootCmd()
		root.SetOut(&bytes.Buffer{})
		if err := root.ParseFlags([]string{"-v"}); err != nil {
			t.Fatal(err)
		}
		sub, _, err := root.Find([]string{"list"})
		if err != nil {
			t.Fatal(err)
		}
		if !getVerboseFlag(sub) {
			t.Error("expected verbose to be true")
		}
	})

	t.Run("defaults to false without the flag", func(t *testing.T) {
		t.Parallel()

		if getVerboseFlag(NewVersionCmd()) {
			t.Error("expected verbose to be false")
		}
	})
}
