package properties

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// FileName is the properties file the game server writes on first boot.
const FileName = "server.properties"

// Entry is a single required key/value pair.
type Entry struct {
	Key   string
	Value string
}

// Result describes what a reconcile pass did.
type Result struct {
	Existed bool
	Changed []string
	Missing []string
}

// Modified reports whether the file was rewritten.
func (r *Result) Modified() bool {
	return len(r.Changed) > 0
}

// Required builds the mandatory remote-console and query entries followed by
// user overrides in key order. An override for a mandatory key replaces it in
// place so every key appears once.
func Required(rconPort int, rconPassword string, queryPort int, overrides map[string]string) []Entry {
	entries := []Entry{
		{Key: "enable-rcon", Value: "true"},
		{Key: "enable-query", Value: "true"},
		{Key: "rcon.port", Value: strconv.Itoa(rconPort)},
		{Key: "query.port", Value: strconv.Itoa(queryPort)},
		{Key: "rcon.password", Value: rconPassword},
	}

	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		replaced := false
		for i := range entries {
			if entries[i].Key == key {
				entries[i].Value = overrides[key]
				replaced = true
				break
			}
		}
		if !replaced {
			entries = append(entries, Entry{Key: key, Value: overrides[key]})
		}
	}
	return entries
}

// Reconcile applies entries to the properties file at path. A missing file is
// a no-op. Keys absent from the file are reported in Result.Missing and left
// unset. The file is rewritten only when at least one value changed.
func Reconcile(path string, entries []Entry) (*Result, error) {
	result := &Result{}

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	result.Existed = true

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	doc := Parse(data)
	for _, entry := range entries {
		changed, found := doc.Set(entry.Key, entry.Value)
		if !found {
			result.Missing = append(result.Missing, entry.Key)
			continue
		}
		if changed {
			log.Printf("[Properties] Change %s", entry.Key)
			result.Changed = append(result.Changed, entry.Key)
		}
	}

	if len(result.Missing) > 0 {
		log.Printf("[Properties] Keys not present in %s, left unset: %v", path, result.Missing)
	}

	if !result.Modified() {
		return result, nil
	}

	if err := writeAtomic(path, doc.Bytes(), info.Mode().Perm()); err != nil {
		return nil, err
	}
	return result, nil
}

func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
