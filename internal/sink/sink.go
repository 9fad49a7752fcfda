// Package sink appends transcript blocks to the output file.
package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// Sink writes to a single output file. Every Append is a complete
// open-write-close cycle so no handle outlives an event.
type Sink struct {
	path    string
	encName string
	enc     encoding.Encoding

	initOnce sync.Once
	initErr  error
}

// New resolves path (a leading "~/" expands to the home directory) and the
// text encoding, which may be any WHATWG label such as "utf-8" or "gbk".
func New(path, encodingName string) (*Sink, error) {
	if path == "" {
		return nil, errors.New("output path is required")
	}
	enc, err := LookupEncoding(encodingName)
	if err != nil {
		return nil, err
	}
	return &Sink{
		path:    expandHome(path),
		encName: encodingName,
		enc:     enc,
	}, nil
}

// LookupEncoding maps an encoding label to its implementation.
func LookupEncoding(name string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("unknown text encoding %q: %w", name, err)
	}
	return enc, nil
}

// Path returns the resolved output path.
func (s *Sink) Path() string { return s.path }

// Init creates the parent directory, truncates the file and writes header.
// Only the first call does any work; later calls return its result.
func (s *Sink) Init(header string) error {
	s.initOnce.Do(func() {
		s.initErr = s.truncateAndHeader(header)
	})
	return s.initErr
}

func (s *Sink) truncateAndHeader(header string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	data, err := s.encode(header)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// Append writes block to the end of the file.
func (s *Sink) Append(block string) (err error) {
	data, err := s.encode(block)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("append output: %w", err)
	}
	return nil
}

// encode converts text to the configured encoding. Characters the target
// cannot represent are replaced rather than failing the whole block.
func (s *Sink) encode(text string) ([]byte, error) {
	out, err := encoding.ReplaceUnsupported(s.enc.NewEncoder()).String(text)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", s.encName, err)
	}
	return []byte(out), nil
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
