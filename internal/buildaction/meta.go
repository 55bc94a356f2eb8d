package buildaction

import "sort"

// Category groups related action types for display/filtering purposes.
type Category int

const (
	CategoryInvalid Category = iota
	CategorySourceManagement
	CategoryBuild
	CategoryDatabaseManagement
	CategoryMaintenance
	CategoryMisc
)

// Flag is a bit within a TypeInfo's supported flags; which bits are valid
// depends on the action type, mirroring the per-type flag enums the
// original declares (e.g. ReloadLibraryDependenciesFlags, PrepareBuildFlags).
type Flag uint64

const (
	FlagForceReload          Flag = 1 << 0
	FlagSkipDependencies     Flag = 1 << 1
	FlagForceBumpPkgRel      Flag = 1 << 2
	FlagCleanSrcDir          Flag = 1 << 3
	FlagKeepOrder            Flag = 1 << 4
	FlagKeepPkgRelAndEpoch   Flag = 1 << 5
	FlagBuildAsFarAsPossible Flag = 1 << 6
	FlagSaveChrootOfFailures Flag = 1 << 7
	FlagUpdateChecksums      Flag = 1 << 8
	FlagAutoStaging          Flag = 1 << 9
	FlagDryRun               Flag = 1 << 10
)

// Setting describes one named, free-text setting an action type accepts
// (e.g. ConductBuild's "chroot-dir"), as opposed to a boolean Flag.
type Setting struct {
	Param string
	Label string
}

// TypeInfo is the static metadata describing one build action type: its
// category, display name, which flags/settings it supports, and whether it
// expects a working directory / source / destination database.
type TypeInfo struct {
	ID             string
	Category       Category
	Name           string
	Flags          map[string]Flag
	Settings       []Setting
	NeedsDirectory bool
	NeedsSourceDB  bool
	NeedsDestDB    bool
	NeedsPackages  bool
}

// MetaInfo is the full table of TypeInfo entries, one per build action type
// this server implements, ported field-for-field from the original's
// BuildActionMetaInfo constructor.
type MetaInfo struct {
	types map[string]TypeInfo
}

// NewMetaInfo builds the static action-type metadata table.
func NewMetaInfo() *MetaInfo {
	m := &MetaInfo{types: make(map[string]TypeInfo)}
	for _, t := range []TypeInfo{
		{
			ID: "remove-packages", Category: CategorySourceManagement, Name: "Remove packages",
			NeedsSourceDB: true, NeedsPackages: true,
		},
		{
			ID: "move-packages", Category: CategorySourceManagement, Name: "Move packages",
			NeedsSourceDB: true, NeedsDestDB: true, NeedsPackages: true,
		},
		{
			ID: "check-for-updates", Category: CategoryMaintenance, Name: "Check for updates",
			NeedsSourceDB: true,
		},
		{
			ID: "reload-database", Category: CategoryDatabaseManagement, Name: "Reload database",
			NeedsSourceDB: true,
		},
		{
			ID: "reload-library-dependencies", Category: CategoryDatabaseManagement, Name: "Reload library dependencies",
			NeedsDestDB: true,
			Flags: map[string]Flag{
				"force-reload":      FlagForceReload,
				"skip-dependencies": FlagSkipDependencies,
			},
		},
		{
			ID: "prepare-build", Category: CategoryBuild, Name: "Prepare build",
			NeedsDirectory: true, NeedsSourceDB: true, NeedsPackages: true,
			Flags: map[string]Flag{
				"force-bump-pkgrel":       FlagForceBumpPkgRel,
				"clean-src-dir":           FlagCleanSrcDir,
				"keep-order":              FlagKeepOrder,
				"keep-pkgrel-and-epoch":   FlagKeepPkgRelAndEpoch,
			},
			Settings: []Setting{{Param: "pkgbuilds-dir", Label: "PKGBUILDs directory"}},
		},
		{
			ID: "conduct-build", Category: CategoryBuild, Name: "Conduct build",
			NeedsDirectory: true,
			Flags: map[string]Flag{
				"build-as-far-as-possible": FlagBuildAsFarAsPossible,
				"save-chroot-of-failures":  FlagSaveChrootOfFailures,
				"update-checksums":         FlagUpdateChecksums,
				"auto-staging":             FlagAutoStaging,
			},
			Settings: []Setting{
				{Param: "chroot-dir", Label: "chroot directory"},
				{Param: "chroot-default-user", Label: "default user within chroot"},
				{Param: "ccache-dir", Label: "ccache directory"},
				{Param: "pkg-cache-dir", Label: "package cache directory"},
				{Param: "test-files-dir", Label: "test files directory"},
			},
		},
		{
			ID: "make-license-info", Category: CategoryMisc, Name: "Make license info",
			NeedsPackages: true,
		},
		{
			ID: "reload-configuration", Category: CategoryMaintenance, Name: "Reload configuration",
		},
		{
			ID: "check-for-problems", Category: CategoryMaintenance, Name: "Check for problems",
			NeedsDestDB: true,
		},
		{
			ID: "clean-repository", Category: CategoryMaintenance, Name: "Clean repository",
			NeedsSourceDB: true,
			Flags:         map[string]Flag{"dry-run": FlagDryRun},
		},
		{
			ID: "dummy-build-action", Category: CategoryMisc, Name: "Dummy build action",
		},
		{
			ID: "custom-command", Category: CategoryMisc, Name: "Custom command",
			NeedsDirectory: true,
			Settings: []Setting{
				{Param: "cmd", Label: "command"},
				{Param: "confirm-start-marker", Label: "confirmation prompt start marker"},
				{Param: "confirm-end-marker", Label: "confirmation prompt end marker"},
			},
		},
	} {
		m.types[t.ID] = t
	}
	return m
}

// TypeInfoForID looks up a TypeInfo by its action type ID.
func (m *MetaInfo) TypeInfoForID(id string) (TypeInfo, bool) {
	t, ok := m.types[id]
	return t, ok
}

// TypeIDs returns every registered action type ID, sorted.
func (m *MetaInfo) TypeIDs() []string {
	ids := make([]string, 0, len(m.types))
	for id := range m.types {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
