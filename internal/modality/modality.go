// Package modality holds the compiled-in catalog of game configurations
// ("modalities") and resolves one into concrete install and launch settings.
// Adding a modality is a new catalog entry, never new control flow.
package modality

import (
	"fmt"
	"path/filepath"
	"sort"
)

// Loader identifies the mod loader a modality runs on
type Loader string

const (
	LoaderNone     Loader = ""
	LoaderNeoForge Loader = "neoforge"
	LoaderForge    Loader = "forge"
	LoaderFabric   Loader = "fabric"
)

// Well-known modality identifiers
const (
	Vanilla  = "vanilla"
	FireMods = "firemods-neoforge"
	FireLite = "firelite-forge"
	Fabric   = "fabric"

	// JoinTarget is the modality used for firecraft://join links
	JoinTarget = FireMods
)

// Modality is a named game configuration
type Modality struct {
	ID            string
	DisplayName   string
	GameVersion   string
	Loader        Loader
	LoaderVersion string
	// FeedKey is the modality's key in the remote modpack manifest; empty
	// means the modality has no modpack.
	FeedKey string
	// ServerAddress is the multiplayer server polled for status; may be empty.
	ServerAddress string
}

// HasModpack reports whether the modality is synchronized from a modpack feed
func (m Modality) HasModpack() bool {
	return m.FeedKey != ""
}

var catalog = map[string]Modality{
	Vanilla: {
		ID:          Vanilla,
		DisplayName: "Vanilla",
		GameVersion: "1.21.1",
	},
	FireMods: {
		ID:            FireMods,
		DisplayName:   "FireMods",
		GameVersion:   "1.21.1",
		Loader:        LoaderNeoForge,
		LoaderVersion: "21.1.174",
		FeedKey:       FireMods,
		ServerAddress: "play.firemods.net",
	},
	FireLite: {
		ID:            FireLite,
		DisplayName:   "FireLite",
		GameVersion:   "1.20.1",
		Loader:        LoaderForge,
		LoaderVersion: "1.20.1-47.3.0",
		FeedKey:       FireLite,
		ServerAddress: "lite.firemods.net",
	},
	Fabric: {
		ID:          Fabric,
		DisplayName: "Fabric",
		GameVersion: "1.21.1",
		Loader:      LoaderFabric,
	},
}

// installerURLs maps loaders that ship an installer jar to their maven layout
var installerURLs = map[Loader]string{
	LoaderNeoForge: "https://maven.neoforged.net/releases/net/neoforged/neoforge/%[1]s/neoforge-%[1]s-installer.jar",
	LoaderForge:    "https://maven.minecraftforge.net/net/minecraftforge/forge/%[1]s/forge-%[1]s-installer.jar",
}

// Options carries the per-call inputs of Resolve
type Options struct {
	BaseDir string
	// VanillaVersion overrides the game version of the vanilla modality.
	VanillaVersion string
}

// Resolved is a modality turned into concrete paths and specs
type Resolved struct {
	Modality          Modality
	RootPath          string
	VersionSpec       string
	LoaderSpec        string
	InstallerURL      string
	InstallerFilename string
}

// Lookup returns the catalog entry for id
func Lookup(id string) (Modality, bool) {
	m, ok := catalog[id]
	return m, ok
}

// All returns the catalog sorted by ID
func All() []Modality {
	out := make([]Modality, 0, len(catalog))
	for _, m := range catalog {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RootPath is the install root of a modality under baseDir
func RootPath(baseDir, id string) string {
	if id == Vanilla {
		return filepath.Join(baseDir, ".minecraft")
	}
	return filepath.Join(baseDir, "instances", id)
}

// Resolve maps a modality identifier to its install root and launch specs.
// Unknown identifiers resolve to vanilla. It never touches disk or network.
func Resolve(id string, opts Options) Resolved {
	m, ok := catalog[id]
	if !ok {
		m = catalog[Vanilla]
	}
	if m.ID == Vanilla && opts.VanillaVersion != "" {
		m.GameVersion = opts.VanillaVersion
	}

	r := Resolved{
		Modality:    m,
		RootPath:    RootPath(opts.BaseDir, m.ID),
		VersionSpec: m.GameVersion,
	}

	switch m.Loader {
	case LoaderNone:
	case LoaderFabric:
		r.LoaderSpec = fmt.Sprintf("fabric:%s", m.GameVersion)
		if m.LoaderVersion != "" {
			r.LoaderSpec += ":" + m.LoaderVersion
		}
	default:
		r.LoaderSpec = fmt.Sprintf("%s:%s", m.Loader, m.LoaderVersion)
	}

	if tmpl, ok := installerURLs[m.Loader]; ok && m.LoaderVersion != "" {
		r.InstallerURL = fmt.Sprintf(tmpl, m.LoaderVersion)
		r.InstallerFilename = fmt.Sprintf("%s-%s-installer.jar", m.Loader, m.LoaderVersion)
	}

	return r
}
