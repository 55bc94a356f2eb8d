package pkgdata

import (
	"fmt"
	"strings"
)

// DependencyOp is the comparison operator carried by a Dependency.
type DependencyOp int

const (
	OpNone DependencyOp = iota
	OpEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
)

func (op DependencyOp) String() string {
	switch op {
	case OpEqual:
		return "="
	case OpLess:
		return "<"
	case OpLessEqual:
		return "<="
	case OpGreater:
		return ">"
	case OpGreaterEqual:
		return ">="
	default:
		return ""
	}
}

// DependencyMode distinguishes a plain name-only reference (used e.g. for
// group membership checks) from a full version-aware dependency match.
// Structurally present on Dependency per the data model but not yet set by
// ParseDependency or read by Matches/MatchesDependency; see DESIGN.md's
// maintainer review follow-ups section for why.
type DependencyMode int

const (
	ModeAny DependencyMode = iota
	ModeNameOnly
)

// Dependency is a parsed "name[<op><version>]" denotation, optionally
// carrying a human-readable description (as found in %OPTDEPENDS%).
type Dependency struct {
	Name        string
	Op          DependencyOp
	Version     Version
	HasVersion  bool
	Description string
	Mode        DependencyMode
}

// ParseDependency parses strings like "glibc", "glibc>=2.35" or
// "foo: does a thing" (opt-depends form).
func ParseDependency(s string) Dependency {
	desc := ""
	rest := s
	if idx := strings.Index(s, ": "); idx != -1 {
		rest = s[:idx]
		desc = s[idx+2:]
	}

	ops := []struct {
		text string
		op   DependencyOp
	}{
		{">=", OpGreaterEqual},
		{"<=", OpLessEqual},
		{"=", OpEqual},
		{">", OpGreater},
		{"<", OpLess},
	}
	for _, candidate := range ops {
		if idx := strings.Index(rest, candidate.text); idx != -1 {
			name := rest[:idx]
			verStr := rest[idx+len(candidate.text):]
			dep := Dependency{Name: name, Op: candidate.op, Description: desc}
			if v, err := ParseVersion(verStr); err == nil {
				dep.Version = v
				dep.HasVersion = true
			}
			return dep
		}
	}
	return Dependency{Name: rest, Op: OpNone, Description: desc}
}

// String renders the dependency back to its canonical denotation.
func (d Dependency) String() string {
	if d.Op == OpNone || !d.HasVersion {
		return d.Name
	}
	return d.Name + d.Op.String() + d.Version.String()
}

// Matches reports whether candidateVersion satisfies this dependency's
// constraint. Two dependencies "match" (per spec.md §3) iff names are equal
// and the constraint admits the other's version; this method implements the
// constraint-admission half of that rule.
func (d Dependency) Matches(candidateVersion Version) bool {
	if d.Op == OpNone || !d.HasVersion {
		return true
	}
	cmp := candidateVersion.Compare(d.Version)
	switch d.Op {
	case OpEqual:
		return cmp == 0
	case OpLess:
		return cmp < 0
	case OpLessEqual:
		return cmp <= 0
	case OpGreater:
		return cmp > 0
	case OpGreaterEqual:
		return cmp >= 0
	default:
		return true
	}
}

// MatchesDependency reports whether d and other refer to the same name and
// whether d's constraint admits other's version (when other carries one).
func (d Dependency) MatchesDependency(other Dependency) bool {
	if d.Name != other.Name {
		return false
	}
	if !other.HasVersion {
		return true
	}
	return d.Matches(other.Version)
}

// DependencyDetail tracks, for one dependency name, the set of packages
// that require it — used to report unresolved/missing dependencies with
// context about who needed them.
type DependencyDetail struct {
	RelevantPackages []*Package
}

// DependencySet is a name-keyed accumulation of dependency requirements,
// e.g. Database.RequiredDeps or Database.ProvidedDeps.
type DependencySet map[string]*DependencyDetail

// Add records that pkg requires/provides dependencyName.
func (s DependencySet) Add(dependencyName string, pkg *Package) {
	detail, ok := s[dependencyName]
	if !ok {
		detail = &DependencyDetail{}
		s[dependencyName] = detail
	}
	for _, existing := range detail.RelevantPackages {
		if existing == pkg {
			return
		}
	}
	detail.RelevantPackages = append(detail.RelevantPackages, pkg)
}

// Remove drops pkg's contribution to dependencyName, deleting the entry
// entirely once no package remains.
func (s DependencySet) Remove(dependencyName string, pkg *Package) {
	detail, ok := s[dependencyName]
	if !ok {
		return
	}
	for i, existing := range detail.RelevantPackages {
		if existing == pkg {
			detail.RelevantPackages = append(detail.RelevantPackages[:i], detail.RelevantPackages[i+1:]...)
			break
		}
	}
	if len(detail.RelevantPackages) == 0 {
		delete(s, dependencyName)
	}
}

// LibraryID is an opaque "<abi-tag>::<soname>" string, e.g.
// "elf-x86_64::libfoo.so.1" or "pe-i386::bar.dll". Compared by byte
// equality, per spec.md §3.
type LibraryID string

// NewLibraryID builds a LibraryID from its format/machine ABI tag and
// soname, e.g. NewLibraryID("elf", "x86_64", "libfoo.so.1").
func NewLibraryID(format, machine, soname string) LibraryID {
	return LibraryID(fmt.Sprintf("%s-%s::%s", format, machine, soname))
}

// Split breaks a LibraryID back into its ABI tag and soname.
func (l LibraryID) Split() (abiTag, soname string) {
	s := string(l)
	idx := strings.Index(s, "::")
	if idx == -1 {
		return s, ""
	}
	return s[:idx], s[idx+2:]
}
