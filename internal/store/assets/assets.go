// Package assets stores uploaded 3D model binaries content-addressed:
// the stored name embeds a truncated sha256 of the bytes plus a
// sanitized form of the declared filename, so identical content uploaded
// under the same name dedupes to one file and unsafe names cannot reach
// the filesystem.
package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	ErrNotFound     = errors.New("asset not found")
	ErrEmptyFile    = errors.New("empty file")
	ErrTooLarge     = errors.New("file too large")
	ErrBadExtension = errors.New("unsupported file extension")
)

const hashPrefixLen = 16

type Store struct {
	root     string
	maxBytes int64
	allowed  map[string]struct{}
}

type Stored struct {
	Name        string // stored filename on disk
	DisplayName string // declared name with the hash segment stripped
	Size        int64
}

func Open(root string, maxBytes int64, allowedExts []string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("assets: empty root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	allowed := make(map[string]struct{}, len(allowedExts))
	for _, ext := range allowedExts {
		allowed[strings.ToLower(ext)] = struct{}{}
	}
	return &Store{root: root, maxBytes: maxBytes, allowed: allowed}, nil
}

func (s *Store) Root() string { return s.root }

// Put validates and writes content, returning the deterministic stored
// name. Re-uploading identical bytes under the same declared name is a
// no-op that returns the existing entry.
func (s *Store) Put(content []byte, declaredName string) (Stored, error) {
	if len(content) == 0 {
		return Stored{}, ErrEmptyFile
	}
	if s.maxBytes > 0 && int64(len(content)) > s.maxBytes {
		return Stored{}, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(content), s.maxBytes)
	}
	ext := strings.ToLower(filepath.Ext(declaredName))
	if _, ok := s.allowed[ext]; !ok {
		return Stored{}, fmt.Errorf("%w: %q", ErrBadExtension, ext)
	}

	sum := sha256.Sum256(content)
	name := hex.EncodeToString(sum[:])[:hashPrefixLen] + "_" + Sanitize(declaredName)
	path := filepath.Join(s.root, name)

	if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
		return Stored{Name: name, DisplayName: DisplayName(name), Size: fi.Size()}, nil
	}

	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return Stored{}, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return Stored{}, err
	}
	if err := tmp.Close(); err != nil {
		return Stored{}, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Stored{}, err
	}
	return Stored{Name: name, DisplayName: DisplayName(name), Size: int64(len(content))}, nil
}

// Get returns the bytes for a stored name. Any name that does not
// survive a sanitize round-trip inside the root resolves to ErrNotFound,
// never to a filesystem error.
func (s *Store) Get(storedName string) ([]byte, error) {
	path, err := s.resolve(storedName)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// Path returns the on-disk path for a stored name after the same
// sanitize-and-confirm round-trip Get performs.
func (s *Store) Path(storedName string) (string, error) {
	path, err := s.resolve(storedName)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return "", ErrNotFound
	}
	return path, nil
}

func (s *Store) resolve(storedName string) (string, error) {
	safe := Sanitize(storedName)
	if safe == "" || safe != storedName {
		return "", ErrNotFound
	}
	path := filepath.Join(s.root, safe)
	rootAbs, err := filepath.Abs(s.root)
	if err != nil {
		return "", ErrNotFound
	}
	pathAbs, err := filepath.Abs(path)
	if err != nil {
		return "", ErrNotFound
	}
	if pathAbs != filepath.Join(rootAbs, safe) {
		return "", ErrNotFound
	}
	return path, nil
}

// List enumerates stored assets sorted by display name.
func (s *Store) List() ([]Stored, error) {
	ents, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	out := make([]Stored, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Stored{
			Name:        e.Name(),
			DisplayName: DisplayName(e.Name()),
			Size:        info.Size(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].DisplayName) < strings.ToLower(out[j].DisplayName)
	})
	return out, nil
}

// Stats returns the file count and total byte size of the store.
func (s *Store) Stats() (count int, bytes int64, err error) {
	ents, err := os.ReadDir(s.root)
	if err != nil {
		return 0, 0, err
	}
	for _, e := range ents {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		count++
		bytes += info.Size()
	}
	return count, bytes, nil
}

// Sanitize strips everything but alphanumerics, '-', '_' and '.', then
// trims leading/trailing dots. No path separator survives, and dot-only
// names collapse to the empty string.
func Sanitize(name string) string {
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

// DisplayName strips the leading hash segment from a stored name.
func DisplayName(storedName string) string {
	if i := strings.Index(storedName, "_"); i == hashPrefixLen && len(storedName) > i+1 {
		if isHexLower(storedName[:i]) {
			return storedName[i+1:]
		}
	}
	return storedName
}

func isHexLower(s string) bool {
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return false
		}
	}
	return true
}
