package buildaction

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/repoforge/repomgr/pkg/pkgdata"
)

func newTestRuntime() *Runtime {
	return NewRuntime(pkgdata.NewConfig())
}

func TestCustomCommandRunsAndSucceeds(t *testing.T) {
	rt := newTestRuntime()
	action := NewAction(1, "custom-command")
	action.Directory = filepath.Join(t.TempDir(), "work")
	action.Settings["cmd"] = "echo building > out.txt"
	action.Enqueue()

	cc := NewCustomCommand(rt, action)
	if err := cc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if action.Result() != ResultSuccess {
		t.Fatalf("Result() = %v, want ResultSuccess", action.Result())
	}
}

func TestCustomCommandFailsWithoutDirectory(t *testing.T) {
	rt := newTestRuntime()
	action := NewAction(1, "custom-command")
	action.Settings["cmd"] = "true"
	action.Enqueue()

	cc := NewCustomCommand(rt, action)
	if err := cc.Run(context.Background()); err == nil {
		t.Fatal("expected an error when no directory is specified")
	}
	if action.Result() != ResultFailure {
		t.Fatalf("Result() = %v, want ResultFailure", action.Result())
	}
}

func TestCustomCommandFailsWithoutCommand(t *testing.T) {
	rt := newTestRuntime()
	action := NewAction(1, "custom-command")
	action.Directory = t.TempDir()
	action.Enqueue()

	cc := NewCustomCommand(rt, action)
	if err := cc.Run(context.Background()); err == nil {
		t.Fatal("expected an error when no command is specified")
	}
}

func TestCustomCommandRecordsNonZeroExit(t *testing.T) {
	rt := newTestRuntime()
	action := NewAction(1, "custom-command")
	action.Directory = t.TempDir()
	action.Settings["cmd"] = "exit 7"
	action.Enqueue()

	cc := NewCustomCommand(rt, action)
	if err := cc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if action.Result() != ResultFailure {
		t.Fatalf("Result() = %v, want ResultFailure", action.Result())
	}
	errs := action.Errors()
	if len(errs) != 1 || !strings.Contains(errs[0], "7") {
		t.Fatalf("Errors() = %v, want an entry mentioning exit code 7", errs)
	}
}

func TestCustomCommandParksForConfirmationWhenCommandPrintsPrompt(t *testing.T) {
	rt := newTestRuntime()
	action := NewAction(1, "custom-command")
	action.Directory = t.TempDir()
	action.Settings["cmd"] = `echo 'CONFIRM[proceed with removal]'`
	action.Settings["confirm-start-marker"] = "CONFIRM["
	action.Settings["confirm-end-marker"] = "]"
	action.Enqueue()

	cc := NewCustomCommand(rt, action)
	done := make(chan error, 1)
	go func() { done <- cc.Run(context.Background()) }()

	deadline := time.After(5 * time.Second)
	for action.State() != StateAwaitingConfirmation {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the action to await confirmation")
		case <-time.After(time.Millisecond):
		}
	}
	if action.ConfirmationMessage() != "proceed with removal" {
		t.Fatalf("ConfirmationMessage() = %q, want %q", action.ConfirmationMessage(), "proceed with removal")
	}
	if err := action.Confirm(true); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Run to finish after confirmation")
	}
	if action.Result() != ResultSuccess {
		t.Fatalf("Result() = %v, want ResultSuccess", action.Result())
	}
}
