package modality

import (
	"path/filepath"
	"strings"
	"testing"
)

// TestResolve tests resolution of every catalog entry
func TestResolve(t *testing.T) {
	base := filepath.Join("data", "FireCraft")

	tests := []struct {
		id            string
		wantID        string
		wantRoot      string
		wantVersion   string
		wantLoader    string
		wantInstaller string
	}{
		{
			id:          Vanilla,
			wantID:      Vanilla,
			wantRoot:    filepath.Join(base, ".minecraft"),
			wantVersion: "1.21.1",
		},
		{
			id:            FireMods,
			wantID:        FireMods,
			wantRoot:      filepath.Join(base, "instances", FireMods),
			wantVersion:   "1.21.1",
			wantLoader:    "neoforge:21.1.174",
			wantInstaller: "neoforge-21.1.174-installer.jar",
		},
		{
			id:            FireLite,
			wantID:        FireLite,
			wantRoot:      filepath.Join(base, "instances", FireLite),
			wantVersion:   "1.20.1",
			wantLoader:    "forge:1.20.1-47.3.0",
			wantInstaller: "forge-1.20.1-47.3.0-installer.jar",
		},
		{
			id:          Fabric,
			wantID:      Fabric,
			wantRoot:    filepath.Join(base, "instances", Fabric),
			wantVersion: "1.21.1",
			wantLoader:  "fabric:1.21.1",
		},
		{
			id:          "does-not-exist",
			wantID:      Vanilla,
			wantRoot:    filepath.Join(base, ".minecraft"),
			wantVersion: "1.21.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			r := Resolve(tt.id, Options{BaseDir: base})
			if r.Modality.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", r.Modality.ID, tt.wantID)
			}
			if r.RootPath != tt.wantRoot {
				t.Errorf("RootPath = %q, want %q", r.RootPath, tt.wantRoot)
			}
			if r.VersionSpec != tt.wantVersion {
				t.Errorf("VersionSpec = %q, want %q", r.VersionSpec, tt.wantVersion)
			}
			if r.LoaderSpec != tt.wantLoader {
				t.Errorf("LoaderSpec = %q, want %q", r.LoaderSpec, tt.wantLoader)
			}
			if r.InstallerFilename != tt.wantInstaller {
				t.Errorf("InstallerFilename = %q, want %q", r.InstallerFilename, tt.wantInstaller)
			}
			if (r.InstallerURL == "") != (tt.wantInstaller == "") {
				t.Errorf("InstallerURL = %q, inconsistent with filename", r.InstallerURL)
			}
			if r.InstallerURL != "" && !strings.HasSuffix(r.InstallerURL, "/"+r.InstallerFilename) {
				t.Errorf("InstallerURL %q does not end in filename %q", r.InstallerURL, r.InstallerFilename)
			}
		})
	}
}

// TestResolve_VanillaVersionOverride tests that only vanilla honors the override
func TestResolve_VanillaVersionOverride(t *testing.T) {
	r := Resolve(Vanilla, Options{VanillaVersion: "1.20.4"})
	if r.VersionSpec != "1.20.4" {
		t.Errorf("vanilla VersionSpec = %q, want 1.20.4", r.VersionSpec)
	}

	r = Resolve(FireMods, Options{VanillaVersion: "1.20.4"})
	if r.VersionSpec != "1.21.1" {
		t.Errorf("modded VersionSpec = %q, override must not apply", r.VersionSpec)
	}

	// The catalog itself is never mutated
	if m, _ := Lookup(Vanilla); m.GameVersion != "1.21.1" {
		t.Errorf("catalog mutated: vanilla GameVersion = %q", m.GameVersion)
	}
}

// TestResolve_Deterministic tests that resolution is a pure function
func TestResolve_Deterministic(t *testing.T) {
	opts := Options{BaseDir: "base"}
	a := Resolve(FireLite, opts)
	b := Resolve(FireLite, opts)
	if a != b {
		t.Errorf("Resolve not deterministic: %+v vs %+v", a, b)
	}
}

// TestHasModpack tests feed detection
func TestHasModpack(t *testing.T) {
	for _, m := range All() {
		want := m.ID == FireMods || m.ID == FireLite
		if m.HasModpack() != want {
			t.Errorf("%s HasModpack() = %v, want %v", m.ID, m.HasModpack(), want)
		}
	}
}

// TestAll tests catalog listing order
func TestAll(t *testing.T) {
	all := All()
	if len(all) != 4 {
		t.Fatalf("All() returned %d modalities, want 4", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Errorf("All() not sorted: %q before %q", all[i-1].ID, all[i].ID)
		}
	}
	if _, ok := Lookup(JoinTarget); !ok {
		t.Error("JoinTarget must be a catalog entry")
	}
}
