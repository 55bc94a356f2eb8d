package pkgdata

import "sort"

// BuildOrderOptions is a bit set controlling how Config.ComputeBuildOrder
// expands a dependency closure, mirroring the original's enum of the same
// name.
type BuildOrderOptions int

const (
	BuildOrderNone                          BuildOrderOptions = 0x0
	BuildOrderIncludeSourceOnlyDependencies BuildOrderOptions = 0x2
	BuildOrderIncludeAllDependencies        BuildOrderOptions = 0x3
	BuildOrderConsiderBuildDependencies      BuildOrderOptions = 0x4
)

func (o BuildOrderOptions) has(flag BuildOrderOptions) bool {
	return o&flag != 0
}

// BuildOrderResult is the outcome of Config.ComputeBuildOrder: a flat,
// dependency-respecting order, the cycle that broke it (if any), the
// denotations that couldn't be resolved at all, and whether the whole
// computation succeeded.
type BuildOrderResult struct {
	Order   []PackageSearchResult
	Cycle   []PackageSearchResult
	Ignored []string
	Success bool
}

type topoSortItem struct {
	pkg      *Package
	db       *Database
	visiting bool
	done     bool
}

// ComputeBuildOrder resolves every denotation in dependencyDenotations to a
// package, then performs a depth-first topological sort over their
// (transitive) dependency graph, following BuildOrderOptions to decide how
// far the closure extends. Ties between packages that become ready at the
// same point are broken by: destination-database preference (the database
// of the package whose dependencies are being resolved), then newest
// version, then lexical database name — matching the batching policy
// recorded in DESIGN.md.
func (c *Config) ComputeBuildOrder(dependencyDenotations []string, options BuildOrderOptions) BuildOrderResult {
	items := make(map[*Package]*topoSortItem)
	var order []PackageSearchResult
	var cycle []PackageSearchResult
	var ignored []string
	var stack []PackageSearchResult

	var visit func(pkg *Package, db *Database) bool
	visit = func(pkg *Package, db *Database) bool {
		item, ok := items[pkg]
		if !ok {
			item = &topoSortItem{pkg: pkg, db: db}
			items[pkg] = item
		}
		if item.done {
			return true
		}
		if item.visiting {
			if len(cycle) == 0 {
				for i, entry := range stack {
					if entry.Package == pkg {
						cycle = append([]PackageSearchResult(nil), stack[i:]...)
						break
					}
				}
			}
			return false
		}
		item.visiting = true
		stack = append(stack, PackageSearchResult{Database: db, Package: pkg})

		deps := pkg.Deps
		if options.has(BuildOrderIncludeSourceOnlyDependencies) && pkg.SourceInfo != nil {
			deps = append(append([]Dependency{}, deps...), pkg.SourceInfo.CheckDeps...)
			if options.has(BuildOrderConsiderBuildDependencies) {
				deps = append(deps, pkg.SourceInfo.MakeDeps...)
			}
		}

		candidates := make([]PackageSearchResult, 0, len(deps))
		for _, dep := range deps {
			result, found := c.FindPackage(dep)
			if !found {
				ignored = append(ignored, dep.String())
				continue
			}
			candidates = append(candidates, result)
		}
		sortBuildOrderCandidates(candidates, db)

		ok2 := true
		for _, cand := range candidates {
			if !visit(cand.Package, cand.Database) {
				ok2 = false
			}
		}

		stack = stack[:len(stack)-1]
		item.visiting = false
		item.done = true
		order = append(order, PackageSearchResult{Database: db, Package: pkg})
		return ok2
	}

	success := true
	for _, denotation := range dependencyDenotations {
		dep := ParseDependency(denotation)
		result, found := c.FindPackage(dep)
		if !found {
			ignored = append(ignored, denotation)
			continue
		}
		if !visit(result.Package, result.Database) {
			success = false
		}
	}

	return BuildOrderResult{Order: order, Cycle: cycle, Ignored: ignored, Success: success && len(cycle) == 0}
}

// sortBuildOrderCandidates applies the tie-break rule in place: candidates
// from preferredDB sort first, then by descending version, then by
// ascending database name.
func sortBuildOrderCandidates(candidates []PackageSearchResult, preferredDB *Database) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		aPref := a.Database == preferredDB
		bPref := b.Database == preferredDB
		if aPref != bPref {
			return aPref
		}
		if cmp := b.Package.Version.Compare(a.Package.Version); cmp != 0 {
			return cmp < 0
		}
		return a.Database.Name < b.Database.Name
	})
}
