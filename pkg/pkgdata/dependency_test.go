package pkgdata

import "testing"

func TestParseDependency(t *testing.T) {
	d := ParseDependency("glibc>=2.35")
	if d.Name != "glibc" || d.Op != OpGreaterEqual || !d.HasVersion {
		t.Fatalf("unexpected parse: %+v", d)
	}
	if d.String() != "glibc>=2.35" {
		t.Errorf("String() = %q", d.String())
	}

	d2 := ParseDependency("bash")
	if d2.Name != "bash" || d2.HasVersion {
		t.Fatalf("unexpected parse: %+v", d2)
	}

	d3 := ParseDependency("foo: does a thing")
	if d3.Name != "foo" || d3.Description != "does a thing" {
		t.Fatalf("unexpected parse: %+v", d3)
	}
}

func TestDependencyMatches(t *testing.T) {
	d := ParseDependency("glibc>=2.35")
	older, _ := ParseVersion("2.30")
	newer, _ := ParseVersion("2.40")
	if d.Matches(older) {
		t.Error("expected 2.30 to not satisfy >=2.35")
	}
	if !d.Matches(newer) {
		t.Error("expected 2.40 to satisfy >=2.35")
	}

	nameOnly := ParseDependency("bash")
	if !nameOnly.Matches(older) {
		t.Error("a dependency without a version constraint should match anything")
	}
}

func TestDependencySetAddRemove(t *testing.T) {
	set := make(DependencySet)
	a := NewPackage("a")
	b := NewPackage("b")
	set.Add("glibc", a)
	set.Add("glibc", b)
	set.Add("glibc", a) // duplicate, should not double up

	if len(set["glibc"].RelevantPackages) != 2 {
		t.Fatalf("expected 2 relevant packages, got %d", len(set["glibc"].RelevantPackages))
	}

	set.Remove("glibc", a)
	if len(set["glibc"].RelevantPackages) != 1 {
		t.Fatalf("expected 1 relevant package after removal, got %d", len(set["glibc"].RelevantPackages))
	}

	set.Remove("glibc", b)
	if _, ok := set["glibc"]; ok {
		t.Error("expected entry to be deleted once empty")
	}
}

func TestLibraryID(t *testing.T) {
	id := NewLibraryID("elf", "x86_64", "libfoo.so.1")
	if string(id) != "elf-x86_64::libfoo.so.1" {
		t.Fatalf("unexpected LibraryID: %s", id)
	}
	abi, soname := id.Split()
	if abi != "elf-x86_64" || soname != "libfoo.so.1" {
		t.Fatalf("Split() = %q, %q", abi, soname)
	}
}
