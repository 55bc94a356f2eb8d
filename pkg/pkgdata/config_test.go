package pkgdata

import "testing"

func TestParseDatabaseDenotation(t *testing.T) {
	name, arch := ParseDatabaseDenotation("core@x86_64")
	if name != "core" || arch != "x86_64" {
		t.Fatalf("got (%q, %q)", name, arch)
	}
	name2, arch2 := ParseDatabaseDenotation("core")
	if name2 != "core" || arch2 != "" {
		t.Fatalf("got (%q, %q)", name2, arch2)
	}
}

func TestParsePackageDenotation(t *testing.T) {
	db, arch, pkg := ParsePackageDenotation("core@x86_64/bash")
	if db != "core" || arch != "x86_64" || pkg != "bash" {
		t.Fatalf("got (%q, %q, %q)", db, arch, pkg)
	}
	db2, arch2, pkg2 := ParsePackageDenotation("bash")
	if db2 != "" || arch2 != "" || pkg2 != "bash" {
		t.Fatalf("got (%q, %q, %q)", db2, arch2, pkg2)
	}
}

func TestFindOrCreateDatabaseIsIdempotent(t *testing.T) {
	cfg := NewConfig()
	a := cfg.FindOrCreateDatabase("core", "x86_64")
	b := cfg.FindOrCreateDatabase("core", "x86_64")
	if a != b {
		t.Error("expected a second call with the same name/arch to return the existing database")
	}
	if len(cfg.Databases) != 1 {
		t.Errorf("expected exactly one database to be registered, got %d", len(cfg.Databases))
	}
}

func TestMarkAndDiscardDatabases(t *testing.T) {
	cfg := NewConfig()
	cfg.FindOrCreateDatabase("core", "x86_64")
	cfg.FindOrCreateDatabase("extra", "x86_64")

	cfg.MarkAllDatabasesToBeDiscarded()
	// simulate a reload that only re-touches "core"
	cfg.FindDatabase("core", "x86_64").ToBeDiscarded = false
	cfg.DiscardDatabases()

	if len(cfg.Databases) != 1 || cfg.Databases[0].Name != "core" {
		t.Fatalf("expected only core to survive discarding, got %+v", cfg.Databases)
	}
}

func TestFindPackageAcrossDatabases(t *testing.T) {
	cfg := NewConfig()
	db := cfg.FindOrCreateDatabase("core", "x86_64")
	db.UpdatePackage(newTestPackage("bash", "5.2-1"))

	result, ok := cfg.FindPackage(ParseDependency("bash>=5.0"))
	if !ok || result.Package.Name != "bash" {
		t.Fatalf("expected to find bash, got ok=%v result=%+v", ok, result)
	}

	_, ok2 := cfg.FindPackage(ParseDependency("bash>=6.0"))
	if ok2 {
		t.Error("expected no match for an unsatisfiable constraint")
	}
}
