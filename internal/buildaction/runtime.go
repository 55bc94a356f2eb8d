package buildaction

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/repoforge/repomgr/pkg/pkgdata"
)

// Runtime owns the two locks every build action takes in a fixed order —
// config before building — plus the registry of actions the server has
// ever created, so status endpoints can look any of them up by ID. The
// fixed ordering is what prevents the classic deadlock between a reader
// walking the package graph and a writer applying a reload's results.
type Runtime struct {
	Config *pkgdata.Config

	configMu   sync.RWMutex
	buildingMu sync.RWMutex

	nextID uint64

	mu      sync.Mutex
	history []*Action
	byID    map[uint64]*Action

	meta *MetaInfo
}

// NewRuntime returns a Runtime operating over cfg.
func NewRuntime(cfg *pkgdata.Config) *Runtime {
	return &Runtime{
		Config: cfg,
		byID:   make(map[uint64]*Action),
		meta:   NewMetaInfo(),
	}
}

// LockConfigRead / LockConfigWrite / LockBuildingRead / LockBuildingWrite
// acquire the two runtime-wide locks. Callers that need both must always
// acquire config first, matching spec.md §5's lock-ordering rule — Go's
// race detector and any deadlock audit should only ever see configMu taken
// before buildingMu across this codebase.
func (rt *Runtime) LockConfigRead() func()    { rt.configMu.RLock(); return rt.configMu.RUnlock }
func (rt *Runtime) LockConfigWrite() func()   { rt.configMu.Lock(); return rt.configMu.Unlock }
func (rt *Runtime) LockBuildingRead() func()  { rt.buildingMu.RLock(); return rt.buildingMu.RUnlock }
func (rt *Runtime) LockBuildingWrite() func() { rt.buildingMu.Lock(); return rt.buildingMu.Unlock }

// MetaInfo returns the action-type metadata table.
func (rt *Runtime) MetaInfo() *MetaInfo {
	return rt.meta
}

// NewActionID allocates the next monotonically increasing action ID.
func (rt *Runtime) NewActionID() uint64 {
	return atomic.AddUint64(&rt.nextID, 1)
}

// Register adds action to the runtime's history and by-ID index.
func (rt *Runtime) Register(action *Action) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.history = append(rt.history, action)
	rt.byID[action.ID] = action
}

// Lookup returns the action with the given ID, or nil.
func (rt *Runtime) Lookup(id uint64) *Action {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.byID[id]
}

// History returns every action ever registered, oldest first.
func (rt *Runtime) History() []*Action {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]*Action(nil), rt.history...)
}

// ValidateDatabases checks that every database name the action references
// (SourceDBs/DestDBs) resolves against rt.Config, the way validateParameter's
// RequiredDatabases check does before a concrete action begins work. An
// empty set is left to the concrete action to interpret (e.g.
// ReloadLibraryDependencies treats an empty DestDBs as "every configured
// database" per spec.md's reload edge case).
func (rt *Runtime) ValidateDatabases(a *Action, needSource, needDest bool) error {
	if needSource {
		for _, denotation := range a.SourceDBs {
			if rt.Config.FindDatabaseFromDenotation(denotation) == nil {
				return fmt.Errorf("buildaction: source database %q not found", denotation)
			}
		}
	}
	if needDest {
		for _, denotation := range a.DestDBs {
			if rt.Config.FindDatabaseFromDenotation(denotation) == nil {
				return fmt.Errorf("buildaction: destination database %q not found", denotation)
			}
		}
	}
	return nil
}
