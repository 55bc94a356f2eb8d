package buildaction

import "testing"

func TestActionLifecycleHappyPath(t *testing.T) {
	a := NewAction(1, "MovePackages")
	if a.State() != StateCreated {
		t.Fatalf("State() = %v, want StateCreated", a.State())
	}
	if err := a.Enqueue(); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if a.StartTime.IsZero() {
		t.Error("expected StartTime to be recorded by Start")
	}
	a.Conclude()
	if a.State() != StateFinished {
		t.Fatalf("State() = %v, want StateFinished", a.State())
	}
	if a.Result() != ResultSuccess {
		t.Fatalf("Result() = %v, want ResultSuccess", a.Result())
	}
}

func TestActionRejectsInvalidTransition(t *testing.T) {
	a := NewAction(1, "MovePackages")
	if err := a.Start(); err == nil {
		t.Fatal("expected Start to fail before Enqueue")
	}
}

func TestActionConcludeReflectsReportedErrors(t *testing.T) {
	a := NewAction(1, "ReloadLibraryDependencies")
	a.Enqueue()
	a.Start()
	a.ReportError("failed to parse foo")
	a.Conclude()
	if a.Result() != ResultFailure {
		t.Fatalf("Result() = %v, want ResultFailure", a.Result())
	}
	if len(a.Errors()) != 1 {
		t.Fatalf("Errors() = %v, want 1 entry", a.Errors())
	}
}

func TestActionConcludeReflectsAbort(t *testing.T) {
	a := NewAction(1, "MovePackages")
	a.Enqueue()
	a.Start()
	a.RequestAbort()
	if !a.Aborted() {
		t.Fatal("expected Aborted() to be true after RequestAbort")
	}
	a.Conclude()
	if a.Result() != ResultAborted {
		t.Fatalf("Result() = %v, want ResultAborted", a.Result())
	}
}

func TestActionConfirmationRoundTrip(t *testing.T) {
	a := NewAction(1, "CleanRepository")
	a.Enqueue()
	a.Start()

	ch := a.AwaitConfirmation("proceed with cleanup?")
	if a.State() != StateAwaitingConfirmation {
		t.Fatalf("State() = %v, want StateAwaitingConfirmation", a.State())
	}
	if a.ConfirmationMessage() != "proceed with cleanup?" {
		t.Fatalf("ConfirmationMessage() = %q", a.ConfirmationMessage())
	}

	done := make(chan bool, 1)
	go func() { done <- <-ch }()

	if err := a.Confirm(true); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if a.State() != StateRunning {
		t.Fatalf("State() = %v, want StateRunning", a.State())
	}
	if !<-done {
		t.Fatal("expected the confirmation channel to deliver true")
	}
}

func TestActionAppendOutputAddsTrailingNewline(t *testing.T) {
	a := NewAction(1, "CustomCommand")
	a.AppendOutput("building foo")
	a.AppendOutput("done\n")
	if got, want := string(a.Output()), "building foo\ndone\n"; got != want {
		t.Errorf("Output() = %q, want %q", got, want)
	}
}

func TestActionSettingDefaultsToEmpty(t *testing.T) {
	a := NewAction(1, "CustomCommand")
	if a.Setting("cmd") != "" {
		t.Errorf("Setting(%q) = %q, want empty", "cmd", a.Setting("cmd"))
	}
	a.Settings["cmd"] = "echo hi"
	if a.Setting("cmd") != "echo hi" {
		t.Errorf("Setting(%q) = %q, want %q", "cmd", a.Setting("cmd"), "echo hi")
	}
}
