package sink

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testHeader = "header\n====\n\n"

func newTestSink(t *testing.T, enc string) *Sink {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "out", "transcript.txt"), enc)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	return string(data)
}

func TestInit_CreatesDirectoryAndHeader(t *testing.T) {
	s := newTestSink(t, "utf-8")

	if err := s.Init(testHeader); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if got := readFile(t, s.Path()); got != testHeader {
		t.Errorf("file = %q, want header only", got)
	}
}

func TestInit_TruncatesExistingFile(t *testing.T) {
	s := newTestSink(t, "utf-8")
	if err := os.MkdirAll(filepath.Dir(s.Path()), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.Path(), []byte("stale content from last run\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := s.Init(testHeader); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if got := readFile(t, s.Path()); got != testHeader {
		t.Errorf("file = %q, want header only", got)
	}
}

func TestInit_RunsOnce(t *testing.T) {
	s := newTestSink(t, "utf-8")
	if err := s.Init(testHeader); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := s.Append("block\n"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := s.Init(testHeader); err != nil {
		t.Fatalf("second Init failed: %v", err)
	}
	if got := readFile(t, s.Path()); got != testHeader+"block\n" {
		t.Errorf("second Init should not truncate, file = %q", got)
	}
}

func TestInit_FailsWhenParentIsAFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := New(filepath.Join(blocker, "transcript.txt"), "utf-8")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Init(testHeader); err == nil {
		t.Fatal("expected Init to fail")
	}
}

func TestAppend_GrowsInOrder(t *testing.T) {
	s := newTestSink(t, "utf-8")
	if err := s.Init(testHeader); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	blocks := []string{"first\n\n", "second\n\n", "third\n\n"}
	for _, b := range blocks {
		if err := s.Append(b); err != nil {
			t.Fatalf("Append(%q) failed: %v", b, err)
		}
	}

	want := testHeader + strings.Join(blocks, "")
	if got := readFile(t, s.Path()); got != want {
		t.Errorf("file = %q, want %q", got, want)
	}
}

func TestAppend_FailsWhenDirectoryMissing(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "missing", "transcript.txt"), "utf-8")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Append("block\n"); err == nil {
		t.Fatal("expected Append to fail without a parent directory")
	}
}

func TestAppend_GBK(t *testing.T) {
	s := newTestSink(t, "gbk")
	if err := s.Init(""); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := s.Append("你好"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	got := []byte(readFile(t, s.Path()))
	want := []byte{0xc4, 0xe3, 0xba, 0xc3}
	if string(got) != string(want) {
		t.Errorf("gbk bytes = % x, want % x", got, want)
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New("", "utf-8"); err == nil {
		t.Error("expected error for empty path")
	}
	if _, err := New("out.txt", "klingon-8"); err == nil {
		t.Error("expected error for unknown encoding")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home dir")
	}

	got := expandHome("~/transcripts/out.txt")
	want := filepath.Join(home, "transcripts/out.txt")
	if got != want {
		t.Errorf("expandHome(~/transcripts/out.txt) = %q, want %q", got, want)
	}

	got = expandHome("/absolute/path")
	if got != "/absolute/path" {
		t.Errorf("expandHome(/absolute/path) = %q", got)
	}
}
