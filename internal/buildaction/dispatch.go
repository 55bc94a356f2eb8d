package buildaction

import (
	"context"
	"fmt"
)

// Runner is the common interface every concrete build action implements:
// a single blocking call that drives the action's *Action through Running
// to Finished (via Conclude), honoring ctx cancellation and Action.Aborted.
type Runner interface {
	Run(ctx context.Context) error
}

// NewRunner constructs the concrete Runner for action's type, the way the
// original dispatches a deserialized BuildAction to its matching C++ class
// by reading its "type" field. Only action types with a concrete Go
// implementation are dispatchable here; the remaining entries in MetaInfo
// (prepare-build, conduct-build, check-for-updates, reload-database,
// make-license-info, reload-configuration, dummy-build-action) are metadata
// only, carried for parameter-validation purposes, and have no Runner.
func NewRunner(rt *Runtime, action *Action) (Runner, error) {
	switch action.Type {
	case "reload-library-dependencies":
		return NewReloadLibraryDependencies(rt, action), nil
	case "move-packages":
		return NewMovePackages(rt, action), nil
	case "remove-packages":
		return NewRemovePackages(rt, action), nil
	case "check-for-problems":
		return NewCheckForProblems(rt, action), nil
	case "clean-repository":
		return NewCleanRepository(rt, action), nil
	case "custom-command":
		return NewCustomCommand(rt, action), nil
	default:
		return nil, fmt.Errorf("buildaction: action type %q has no runner", action.Type)
	}
}

// Dispatch looks up action.Type's TypeInfo, validates the action's declared
// databases against it via Runtime.ValidateDatabases, constructs the
// concrete Runner, and runs it. This is the single entry point a server
// handler should call once an action has been enqueued.
func (rt *Runtime) Dispatch(ctx context.Context, action *Action) error {
	info, ok := rt.meta.TypeInfoForID(action.Type)
	if !ok {
		return fmt.Errorf("buildaction: unknown action type %q", action.Type)
	}
	if err := rt.ValidateDatabases(action, info.NeedsSourceDB, info.NeedsDestDB); err != nil {
		return err
	}
	runner, err := NewRunner(rt, action)
	if err != nil {
		return err
	}
	return runner.Run(ctx)
}
