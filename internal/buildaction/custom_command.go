package buildaction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// CustomCommand runs an operator-supplied shell command via "bash -ec" in
// the action's working directory, reporting success only if the command
// exits zero.
type CustomCommand struct {
	rt     *Runtime
	action *Action
}

// NewCustomCommand returns a CustomCommand action running
// action.Setting("cmd") inside action.Directory.
func NewCustomCommand(rt *Runtime, action *Action) *CustomCommand {
	return &CustomCommand{rt: rt, action: action}
}

func (c *CustomCommand) Run(ctx context.Context) error {
	if err := c.action.Start(); err != nil {
		return err
	}

	if c.action.Directory == "" {
		err := fmt.Errorf("no directory specified")
		c.action.ReportError(err.Error())
		c.action.Conclude()
		return err
	}
	command := c.action.Setting("cmd")
	if command == "" {
		err := fmt.Errorf("no command specified")
		c.action.ReportError(err.Error())
		c.action.Conclude()
		return err
	}

	if err := os.MkdirAll(c.action.Directory, 0755); err != nil {
		err = fmt.Errorf("unable to create working directory: %w", err)
		c.action.ReportError(err.Error())
		c.action.Conclude()
		return err
	}

	c.action.AppendOutput(fmt.Sprintf("running custom command: %s", command))

	bash, err := FindExecutable("bash")
	if err != nil {
		c.action.ReportError(err.Error())
		c.action.Conclude()
		return err
	}

	search := c.confirmationSearch()

	var exitCode int
	var runErr error
	logPath := filepath.Join(c.action.Directory, "the.log")
	runErr = RunProcess(ctx, c.action, bash, c.action.Directory, logPath, []string{"-ec", command}, search, func(result ProcessResult) {
		exitCode = result.ExitCode
		if result.Err != nil {
			runErr = result.Err
		}
	})
	if runErr != nil {
		c.action.ReportError(fmt.Sprintf("unable to invoke command: %v", runErr))
		c.action.Conclude()
		return runErr
	}
	if exitCode != 0 {
		c.action.ReportError(fmt.Sprintf("non-zero exit code %d", exitCode))
		c.action.Conclude()
		return nil
	}

	unlock := c.rt.LockBuildingWrite()
	defer unlock()
	c.action.Conclude()
	return nil
}

// confirmationSearch builds a BufferSearch out of the command's configured
// confirm-start-marker/confirm-end-marker settings, if both are set. Once
// the command's own output delivers the delimited prompt text, the action
// is parked in AwaitingConfirmation until something calls Action.Confirm;
// an operator declining aborts the run rather than letting the command
// continue unattended past a prompt it printed.
func (c *CustomCommand) confirmationSearch() *BufferSearch {
	startMarker := c.action.Setting("confirm-start-marker")
	endMarker := c.action.Setting("confirm-end-marker")
	if startMarker == "" || endMarker == "" {
		return nil
	}
	return NewBufferSearch(startMarker, endMarker, func(payload string) {
		proceed := <-c.action.AwaitConfirmation(payload)
		if !proceed {
			c.action.RequestAbort()
		}
	})
}
