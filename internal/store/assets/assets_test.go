package assets

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

var testExts = []string{".gltf", ".glb", ".obj", ".stl"}

func open(t *testing.T, maxBytes int64) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), maxBytes, testExts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestPut_ContentAddressing(t *testing.T) {
	s := open(t, 0)
	content := []byte("glTF fake payload")

	a, err := s.Put(content, "arm.glb")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	b, err := s.Put(content, "arm.glb")
	if err != nil {
		t.Fatalf("Put again: %v", err)
	}
	if a.Name != b.Name {
		t.Fatalf("identical bytes+name stored twice: %q vs %q", a.Name, b.Name)
	}

	// Same bytes under a different declared name is a distinct asset.
	c, err := s.Put(content, "leg.glb")
	if err != nil {
		t.Fatalf("Put other name: %v", err)
	}
	if c.Name == a.Name {
		t.Fatalf("different declared names collided: %q", c.Name)
	}

	// Distinct content never collides.
	d, err := s.Put([]byte("something else"), "arm.glb")
	if err != nil {
		t.Fatalf("Put distinct: %v", err)
	}
	if d.Name == a.Name {
		t.Fatalf("distinct content collided: %q", d.Name)
	}
}

func TestPut_Validation(t *testing.T) {
	s := open(t, 64)

	if _, err := s.Put(nil, "a.glb"); !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("empty: got %v", err)
	}
	if _, err := s.Put([]byte("x"), "evil.exe"); !errors.Is(err, ErrBadExtension) {
		t.Fatalf(".exe: got %v", err)
	}
	if _, err := s.Put([]byte("tiny model"), "ok.glb"); err != nil {
		t.Fatalf(".glb rejected: %v", err)
	}
	if _, err := s.Put(bytes.Repeat([]byte("x"), 65), "big.glb"); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("oversize: got %v", err)
	}
}

func TestGet_RoundTrip(t *testing.T) {
	s := open(t, 0)
	content := []byte("mesh bytes")
	st, err := s.Put(content, "rover body.glb") // space is stripped
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(st.Name)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("content mismatch")
	}
	if st.DisplayName != "roverbody.glb" {
		t.Fatalf("display name: got %q", st.DisplayName)
	}
}

func TestGet_TraversalRefused(t *testing.T) {
	s := open(t, 0)
	for _, name := range []string{
		"../../etc/passwd",
		"..%2f..%2fetc%2fpasswd",
		"..",
		".",
		"",
		"a/b.glb",
		"nope.glb",
	} {
		if _, err := s.Get(name); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%q: got %v want ErrNotFound", name, err)
		}
	}
}

func TestList_SortedByDisplayName(t *testing.T) {
	s := open(t, 0)
	for _, name := range []string{"zebra.glb", "alpha.glb", "Mid.glb"} {
		if _, err := s.Put([]byte(name), name); err != nil {
			t.Fatalf("Put %s: %v", name, err)
		}
	}
	got, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len: got %d want 3", len(got))
	}
	want := []string{"alpha.glb", "Mid.glb", "zebra.glb"}
	for i, st := range got {
		if st.DisplayName != want[i] {
			t.Fatalf("order[%d]: got %q want %q", i, st.DisplayName, want[i])
		}
		if !strings.HasSuffix(st.Name, "_"+st.DisplayName) {
			t.Fatalf("stored name %q does not embed display name", st.Name)
		}
	}
}

func TestStats(t *testing.T) {
	s := open(t, 0)
	if _, err := s.Put([]byte("aaaa"), "a.glb"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := s.Put([]byte("bbbbbb"), "b.glb"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	count, size, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if count != 2 || size != 10 {
		t.Fatalf("got count=%d size=%d want 2/10", count, size)
	}
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"arm.gltf":         "arm.gltf",
		"../../etc/passwd": "etcpasswd",
		"..":               "",
		"a b c!.glb":       "abc.glb",
		"ロボット.glb":         "glb",
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Fatalf("Sanitize(%q): got %q want %q", in, got, want)
		}
	}
}
