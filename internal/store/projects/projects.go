// Package projects persists project documents. Each project lives in its
// own directory with a project.json and one file per script; a singleton
// last_state.json mirrors the most recently saved document so restoring
// the latest project is O(1). Writes stage through temp files and commit
// by rename, so a crash never leaves a half-written document or a last
// pointer referencing one.
package projects

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var ErrNotFound = errors.New("project not found")

const (
	documentFile  = "project.json"
	scriptsDir    = "scripts"
	lastStateFile = "last_state.json"
)

type Store struct {
	root string
}

func Open(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("projects: empty root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) Root() string { return s.root }

// Save writes the full document, one file per script, and then the last
// pointer. id may be empty; a time-derived one is assigned. The document
// and the last pointer each become visible only via an atomic rename.
func (s *Store) Save(p Project, id string) (string, error) {
	if id == "" {
		id = fmt.Sprintf("project_%d", time.Now().UnixMilli())
	}
	id = sanitizeName(id)
	if id == "" {
		return "", fmt.Errorf("projects: invalid project id")
	}

	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("projects: encode: %w", err)
	}

	dir := filepath.Join(s.root, id)
	if err := os.MkdirAll(filepath.Join(dir, scriptsDir), 0o755); err != nil {
		return "", err
	}
	for name, body := range p.Scripts {
		safe := sanitizeName(name)
		if safe == "" {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, scriptsDir, safe), []byte(body), 0o644); err != nil {
			return "", fmt.Errorf("projects: write script %s: %w", safe, err)
		}
	}

	if err := writeFileAtomic(filepath.Join(dir, documentFile), raw); err != nil {
		return "", fmt.Errorf("projects: write document: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.root, lastStateFile), raw); err != nil {
		return "", fmt.Errorf("projects: update last pointer: %w", err)
	}
	return id, nil
}

func (s *Store) Load(id string) (Project, error) {
	safe := sanitizeName(id)
	if safe == "" || safe != id {
		return Project{}, ErrNotFound
	}
	return readProject(filepath.Join(s.root, safe, documentFile))
}

// LoadLast returns the most recently saved project.
func (s *Store) LoadLast() (Project, error) {
	return readProject(filepath.Join(s.root, lastStateFile))
}

// Script returns one script body from a saved project.
func (s *Store) Script(id, name string) ([]byte, error) {
	safeID, safeName := sanitizeName(id), sanitizeName(name)
	if safeID == "" || safeName == "" {
		return nil, ErrNotFound
	}
	b, err := os.ReadFile(filepath.Join(s.root, safeID, scriptsDir, safeName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// listDoc decodes only what the summary needs; script bodies stay as raw
// bytes and are only counted.
type listDoc struct {
	Name    string                     `json:"name"`
	SavedAt string                     `json:"savedAt"`
	Scripts map[string]json.RawMessage `json:"scripts"`
	Models  []json.RawMessage          `json:"models"`
}

// List enumerates saved projects sorted by savedAt descending.
// Directories without a committed project.json (an interrupted first
// save) are skipped.
func (s *Store) List() ([]ListItem, error) {
	ents, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	out := make([]ListItem, 0, len(ents))
	for _, e := range ents {
		if !e.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.root, e.Name(), documentFile))
		if err != nil {
			continue
		}
		var doc listDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		name := doc.Name
		if name == "" {
			name = "Untitled"
		}
		out = append(out, ListItem{
			ID:          e.Name(),
			Name:        name,
			LastSaved:   doc.SavedAt,
			ModelCount:  len(doc.Models),
			ScriptCount: len(doc.Scripts),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSaved > out[j].LastSaved })
	return out, nil
}

// Stats returns the number of saved projects and the total bytes under
// the project root (documents, scripts and the last pointer).
func (s *Store) Stats() (count int, bytes int64, err error) {
	ents, err := os.ReadDir(s.root)
	if err != nil {
		return 0, 0, err
	}
	for _, e := range ents {
		if e.IsDir() {
			if _, statErr := os.Stat(filepath.Join(s.root, e.Name(), documentFile)); statErr == nil {
				count++
			}
		}
	}
	err = filepath.WalkDir(s.root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() {
			return nil
		}
		if info, infoErr := d.Info(); infoErr == nil {
			bytes += info.Size()
		}
		return nil
	})
	return count, bytes, err
}

func readProject(path string) (Project, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Project{}, ErrNotFound
		}
		return Project{}, err
	}
	var p Project
	if err := json.Unmarshal(raw, &p); err != nil {
		return Project{}, fmt.Errorf("projects: decode %s: %w", filepath.Base(path), err)
	}
	return p, nil
}

func writeFileAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".stage-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-', r == '_', r == '.':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), ".")
}
