package chunkfile

import (
	"fmt"
	"os"

	"github.com/lox-lang/lox/vm"
)

// WriteFile compiles-and-saves plumbing: wraps the chunk in a fresh
// container and writes it to path.
func WriteFile(path string, c *vm.Chunk) (*File, error) {
	f := New(c)
	data, err := Marshal(f)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("chunkfile: write %s: %w", path, err)
	}
	return f, nil
}

// ReadFile loads a .loxc container from path.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("chunkfile: read %s: %w", path, err)
	}
	return Unmarshal(data)
}
