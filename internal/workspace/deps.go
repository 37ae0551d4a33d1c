package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Iron-Ham/holrepl/internal/logging"
)

// LoadDeps reads the dependency file at path: a JSON array of directories.
// A missing file yields no entries. A malformed file is logged and also
// yields no entries.
func LoadDeps(path string, logger *logging.Logger) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to read deps file", "path", path, "error", err)
		}
		return nil
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}

	var entries []string
	if err := json.Unmarshal(data, &entries); err != nil {
		logger.Warn("malformed deps file, ignoring it", "path", path, "error", err)
		return nil
	}
	return entries
}

// SaveDeps writes entries to path atomically, creating its directory.
func SaveDeps(path string, entries []string) error {
	if entries == nil {
		entries = []string{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal deps: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	return atomicWriteFile(path, append(data, '\n'), 0644)
}

// AddDep appends dir to the dependency file unless it is already listed.
// It reports whether the file changed.
func AddDep(path, dir string, logger *logging.Logger) (bool, error) {
	entries := LoadDeps(path, logger)
	if slices.Contains(entries, dir) {
		return false, nil
	}
	return true, SaveDeps(path, append(entries, dir))
}

// RemoveDep removes dir from the dependency file. It reports whether the
// file changed.
func RemoveDep(path, dir string, logger *logging.Logger) (bool, error) {
	entries := LoadDeps(path, logger)
	i := slices.Index(entries, dir)
	if i < 0 {
		return false, nil
	}
	return true, SaveDeps(path, slices.Delete(entries, i, i+1))
}

// ResolveDeps expands environment references in entries. An entry of the
// form "$VAR" or "$VAR/rest" takes its prefix from the variable; relative
// results are taken relative to root. Entries whose variable is unset are
// dropped and logged. Duplicates are removed, keeping the first.
func ResolveDeps(entries []string, root string, lookup func(string) (string, bool), logger *logging.Logger) []string {
	var out []string
	seen := make(map[string]bool)
	for _, entry := range entries {
		dir, ok := resolveEntry(entry, lookup)
		if !ok {
			logger.Warn("dependency refers to an unset variable", "entry", entry)
			continue
		}
		if dir == "" {
			continue
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(root, dir)
		}
		dir = filepath.Clean(dir)
		if !seen[dir] {
			seen[dir] = true
			out = append(out, dir)
		}
	}
	return out
}

func resolveEntry(entry string, lookup func(string) (string, bool)) (string, bool) {
	entry = strings.TrimSpace(entry)
	if !strings.HasPrefix(entry, "$") {
		return entry, true
	}
	name, rest, _ := strings.Cut(entry[1:], "/")
	name = strings.Trim(name, "{}")
	value, ok := lookup(name)
	if !ok || value == "" {
		return "", false
	}
	if rest == "" {
		return value, true
	}
	return filepath.Join(value, rest), true
}

// atomicWriteFile writes data to a temp file in the same directory and
// renames it over path.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	tmpPath = ""
	return nil
}
