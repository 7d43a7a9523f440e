// Package version persists which modpack version is installed for each
// modality. The record is a flat JSON object stored next to the game files:
//
//	<root>/firecraft_version.json  {"firemods-neoforge": "3", ...}
//
// Versions are opaque tokens chosen by the server; they are only ever
// compared for equality.
package version

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// FileName is the record's name inside a modality root
const FileName = "firecraft_version.json"

// ErrCorrupt is returned by Load when the record is not a JSON object
var ErrCorrupt = errors.New("version record is corrupt")

// Path returns the record location for a modality root
func Path(root string) string {
	return filepath.Join(root, FileName)
}

// Load reads the whole record. A missing file is an empty record.
func Load(root string) (map[string]string, error) {
	data, err := os.ReadFile(Path(root))
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read version record: %w", err)
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return nil, ErrCorrupt
	}

	record := map[string]string{}
	gjson.ParseBytes(data).ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.String {
			record[key.String()] = value.String()
		}
		return true
	})
	return record, nil
}

// Installed returns the recorded version of one modality
func Installed(root, id string) (string, bool, error) {
	record, err := Load(root)
	if err != nil {
		return "", false, err
	}
	v, ok := record[id]
	return v, ok, nil
}

// Commit records version for id, preserving every other entry in the file
func Commit(root, id, version string) error {
	return modify(root, func(doc []byte) ([]byte, error) {
		return sjson.SetBytes(doc, escapeKey(id), version)
	})
}

// Forget removes id from the record; other entries are kept
func Forget(root, id string) error {
	return modify(root, func(doc []byte) ([]byte, error) {
		return sjson.DeleteBytes(doc, escapeKey(id))
	})
}

func modify(root string, edit func([]byte) ([]byte, error)) error {
	path := Path(root)
	doc, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		doc = []byte("{}")
	case err != nil:
		return fmt.Errorf("failed to read version record: %w", err)
	case !gjson.ValidBytes(doc) || !gjson.ParseBytes(doc).IsObject():
		// A corrupt record carries no trustworthy entries; start over.
		doc = []byte("{}")
	}

	updated, err := edit(doc)
	if err != nil {
		return fmt.Errorf("failed to update version record: %w", err)
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("failed to create modality root: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, updated, 0o644); err != nil {
		return fmt.Errorf("failed to write version record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace version record: %w", err)
	}
	return nil
}

// escapeKey makes a modality id safe to use as a gjson/sjson path
func escapeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		if strings.ContainsRune(`\.*?|#@!=<>%:`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
