package main

import (
	"context"
	"testing"
)

func TestRun_help(t *testing.T) {
	code := Run(context.Background(), []string{"--help"})
	if code != 0 {
		t.Errorf("Run --help: got exit code %d", code)
	}
}

func TestRun_version(t *testing.T) {
	code := Run(context.Background(), []string{"--version"})
	if code != 0 {
		t.Errorf("Run --version: got exit code %d", code)
	}
}

func TestRun_unknownFlag(t *testing.T) {
	code := Run(context.Background(), []string{"--unknown-flag"})
	if code != 1 {
		t.Errorf("Run --unknown-flag: got exit code %d, want 1", code)
	}
}

func TestRun_statusWithEmptyHome(t *testing.T) {
	code := Run(context.Background(), []string{"--home", t.TempDir(), "status"})
	if code != 0 {
		t.Errorf("Run status: got exit code %d", code)
	}
}

func TestRun_badColumn(t *testing.T) {
	code := Run(context.Background(), []string{"--home", t.TempDir(), "move", "K-100", "backlog"})
	if code != 1 {
		t.Errorf("Run move to unknown column: got exit code %d, want 1", code)
	}
}
