package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SetKeyInFile updates or adds a global option in the config file, keeping
// comments and layout. An existing global line is replaced in place; a new
// key goes before the first section header, or at the end.
//
// Keys inside [section] blocks are never matched.
func SetKeyInFile(path, key, value string) error {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config file: %w", err)
	}

	var lines []string
	if len(data) > 0 {
		lines = strings.Split(string(data), "\n")
	}

	entry := key
	if value != "" {
		entry = key + " " + value
	}

	found := false
	insertIndex := len(lines)

scan:
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]"):
			insertIndex = i
			break scan
		case trimmed == "" || strings.HasPrefix(trimmed, "#"):
			continue
		}
		if name, _, _ := strings.Cut(trimmed, " "); name == key {
			lines[i] = entry
			found = true
			break
		}
	}

	if !found {
		switch {
		case insertIndex < len(lines):
			lines = append(lines[:insertIndex+1], lines[insertIndex:]...)
			lines[insertIndex] = entry
		case len(lines) > 0 && lines[len(lines)-1] == "":
			lines = append(lines[:len(lines)-1], entry, "")
		default:
			lines = append(lines, entry)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return atomicWriteFile(path, []byte(strings.Join(lines, "\n")), 0644)
}

// atomicWriteFile writes via a temporary file in the same directory, then
// renames it over path.
func atomicWriteFile(path string, data []byte, perm os.FileMode) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err = os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
