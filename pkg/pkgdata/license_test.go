package pkgdata

import "testing"

func TestComputeLicenseInfoGroupsCommonAndCustomLicenses(t *testing.T) {
	cfg := NewConfig()
	db := cfg.FindOrCreateDatabase("core", "x86_64")

	lib := newTestPackage("libfoo", "1.0-1")
	lib.Licenses = []string{"MIT"}
	app := newTestPackage("app", "1.0-1", "libfoo")
	app.Licenses = []string{"custom-app-license"}
	db.UpdatePackage(lib)
	db.UpdatePackage(app)

	result := cfg.ComputeLicenseInfo([]string{"app"})
	if !result.Success {
		t.Fatal("expected computation to succeed")
	}
	if result.MainProject != "app" {
		t.Errorf("MainProject = %q, want %q", result.MainProject, "app")
	}
	if entry, ok := result.CommonLicenses["MIT"]; !ok || len(entry.RelevantPackages) != 1 || entry.RelevantPackages[0] != "libfoo" {
		t.Errorf("expected MIT to be grouped under common licenses with libfoo, got %+v", result.CommonLicenses["MIT"])
	}
	if _, ok := result.CustomLicenses["custom-app-license"]; !ok {
		t.Error("expected the non-SPDX license name to be recorded under custom licenses")
	}

	found := false
	for _, name := range result.ConsideredPackages {
		if name == "libfoo" {
			found = true
		}
	}
	if !found {
		t.Error("expected libfoo to be pulled in via app's dependency closure")
	}
}

func TestComputeLicenseInfoRecordsIgnoredDenotations(t *testing.T) {
	cfg := NewConfig()
	cfg.FindOrCreateDatabase("core", "x86_64")

	result := cfg.ComputeLicenseInfo([]string{"does-not-exist"})
	if len(result.IgnoredPackages) != 1 {
		t.Fatalf("expected one ignored package, got %v", result.IgnoredPackages)
	}
}
