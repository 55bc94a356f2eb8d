package pkgdata

import "sort"

// LicenseFile is one license text file found under a package's /usr/share/licenses.
type LicenseFile struct {
	FileName string
	Content  string
}

// CommonLicense groups the packages that all reference the exact same
// license file content (e.g. every GPL-licensed package pointing at the
// same /usr/share/licenses/common/GPL2/license.txt).
type CommonLicense struct {
	RelevantPackages []string
	Files            []LicenseFile
}

// LicenseResult is the outcome of Config.ComputeLicenseInfo.
type LicenseResult struct {
	CommonLicenses     map[string]*CommonLicense
	CustomLicenses     map[string][]LicenseFile
	ConsideredPackages []string
	IgnoredPackages    []string
	Notes              []string
	MainProject        string
	DependendProjects  []string
	LicenseSummary     string
	Success            bool
}

// ComputeLicenseInfo resolves dependencyDenotations and walks their
// dependency closure, grouping every package's declared Licenses into
// either the shared commonLicenses table (when the license name matches a
// well-known SPDX-style common license) or customLicenses (anything else).
// Reading the actual license file contents out of a package's installed
// tree is left to the caller (e.g. the archive layer, when walking package
// contents for C7); this computation only aggregates the package metadata.
func (c *Config) ComputeLicenseInfo(dependencyDenotations []string) LicenseResult {
	result := LicenseResult{
		CommonLicenses: make(map[string]*CommonLicense),
		CustomLicenses: make(map[string][]LicenseFile),
		Success:        true,
	}

	seen := make(map[*Package]struct{})
	var visit func(pkg *Package)
	visit = func(pkg *Package) {
		if _, ok := seen[pkg]; ok {
			return
		}
		seen[pkg] = struct{}{}
		result.ConsideredPackages = append(result.ConsideredPackages, pkg.Name)
		for _, license := range pkg.Licenses {
			if isCommonLicense(license) {
				entry, ok := result.CommonLicenses[license]
				if !ok {
					entry = &CommonLicense{}
					result.CommonLicenses[license] = entry
				}
				entry.RelevantPackages = appendUniqueString(entry.RelevantPackages, pkg.Name)
			} else {
				if _, ok := result.CustomLicenses[license]; !ok {
					result.CustomLicenses[license] = nil
				}
			}
		}
		for _, dep := range pkg.Deps {
			if found, ok := c.FindPackage(dep); ok {
				visit(found.Package)
			}
		}
	}

	for i, denotation := range dependencyDenotations {
		dep := ParseDependency(denotation)
		found, ok := c.FindPackage(dep)
		if !ok {
			result.IgnoredPackages = append(result.IgnoredPackages, denotation)
			continue
		}
		if i == 0 {
			result.MainProject = found.Package.Name
		} else {
			result.DependendProjects = append(result.DependendProjects, found.Package.Name)
		}
		visit(found.Package)
	}

	sort.Strings(result.ConsideredPackages)
	return result
}

// isCommonLicense reports whether name is one of the well-known license
// identifiers that pacman's common-licenses package ships, as opposed to a
// package-private custom license text.
func isCommonLicense(name string) bool {
	switch name {
	case "GPL", "GPL2", "GPL3", "LGPL", "LGPL2.1", "LGPL3",
		"AGPL3", "Apache", "MPL", "MPL2", "BSD", "MIT", "PSF", "Python", "RUBY", "ZPL":
		return true
	default:
		return false
	}
}

func appendUniqueString(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
