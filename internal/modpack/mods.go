package modpack

import (
	"archive/zip"
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

const disabledSuffix = ".disabled"

// Mod is a jar found in a modality's mods directory
type Mod struct {
	FileName string
	Name     string
	Version  string
	Enabled  bool
	Size     int64
}

// ListMods returns the enabled (.jar) and disabled (.jar.disabled) mods of
// root, sorted by file name. A missing mods directory lists nothing.
func ListMods(root string) ([]Mod, error) {
	dir := filepath.Join(root, "mods")
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read mods directory: %w", err)
	}

	var mods []Mod
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		enabled := strings.HasSuffix(name, ".jar")
		if !enabled && !strings.HasSuffix(name, ".jar"+disabledSuffix) {
			continue
		}

		mod := Mod{FileName: name, Enabled: enabled}
		if info, err := e.Info(); err == nil {
			mod.Size = info.Size()
		}
		mod.Name, mod.Version = readModMetadata(filepath.Join(dir, name))
		if mod.Name == "" {
			mod.Name = strings.TrimSuffix(strings.TrimSuffix(name, disabledSuffix), ".jar")
		}
		mods = append(mods, mod)
	}

	sort.Slice(mods, func(i, j int) bool { return mods[i].FileName < mods[j].FileName })
	return mods, nil
}

// ToggleMod flips a mod between enabled and disabled by renaming it
func ToggleMod(root, fileName string) (Mod, error) {
	if fileName == "" || strings.ContainsAny(fileName, `/\`) || fileName == "." || fileName == ".." {
		return Mod{}, fmt.Errorf("invalid mod file name: %q", fileName)
	}

	dir := filepath.Join(root, "mods")
	var target string
	switch {
	case strings.HasSuffix(fileName, ".jar"+disabledSuffix):
		target = strings.TrimSuffix(fileName, disabledSuffix)
	case strings.HasSuffix(fileName, ".jar"):
		target = fileName + disabledSuffix
	default:
		return Mod{}, fmt.Errorf("not a mod jar: %s", fileName)
	}

	if err := os.Rename(filepath.Join(dir, fileName), filepath.Join(dir, target)); err != nil {
		return Mod{}, fmt.Errorf("failed to toggle mod: %w", err)
	}

	mod := Mod{FileName: target, Enabled: !strings.HasSuffix(target, disabledSuffix)}
	mod.Name, mod.Version = readModMetadata(filepath.Join(dir, target))
	return mod, nil
}

// readModMetadata reads the display name and version out of a mod jar.
// Either may be empty.
func readModMetadata(jarPath string) (string, string) {
	r, err := zip.OpenReader(jarPath)
	if err != nil {
		return "", ""
	}
	defer r.Close()

	var name, ver string
	for _, f := range r.File {
		switch f.Name {
		case "fabric.mod.json":
			name, ver = parseFabricModJSON(f)
		case "META-INF/neoforge.mods.toml", "META-INF/mods.toml":
			name, ver = parseModsToml(f)
		default:
			continue
		}
		if name != "" {
			break
		}
	}
	if ver == "" || ver == "${file.jarVersion}" {
		ver = manifestVersion(r.File)
	}
	return name, ver
}

func parseFabricModJSON(f *zip.File) (string, string) {
	rc, err := f.Open()
	if err != nil {
		return "", ""
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, 1<<20))
	if err != nil || !gjson.ValidBytes(data) {
		return "", ""
	}
	res := gjson.GetManyBytes(data, "name", "version")
	return res[0].String(), res[1].String()
}

// parseModsToml scans the first [[mods]] table. Only displayName and version
// are needed, so the file is read line by line.
func parseModsToml(f *zip.File) (string, string) {
	rc, err := f.Open()
	if err != nil {
		return "", ""
	}
	defer rc.Close()

	var name, ver string
	inMods := false
	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "[") {
			if inMods && line != "[[mods]]" {
				break
			}
			inMods = line == "[[mods]]"
			continue
		}
		if !inMods {
			continue
		}
		key, value, ok := tomlPair(line)
		if !ok {
			continue
		}
		switch key {
		case "displayName":
			name = value
		case "version":
			ver = value
		}
	}
	return name, ver
}

func tomlPair(line string) (string, string, bool) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", false
	}
	value = strings.TrimSpace(value)
	if i := strings.Index(value, " #"); i >= 0 {
		value = strings.TrimSpace(value[:i])
	}
	return strings.TrimSpace(key), strings.Trim(value, `"'`), true
}

func manifestVersion(files []*zip.File) string {
	for _, f := range files {
		if f.Name != "META-INF/MANIFEST.MF" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return ""
		}
		defer rc.Close()
		scanner := bufio.NewScanner(rc)
		for scanner.Scan() {
			if v, ok := strings.CutPrefix(scanner.Text(), "Implementation-Version:"); ok {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}
