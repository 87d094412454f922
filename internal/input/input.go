// Package input loads whole files for the command line tools.
package input

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/exp/mmap"
)

// Load returns the contents of the file at path, or of standard input
// if path is "-".
func Load(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	r, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	// The parsed tree keeps slices of its source, so copy out of the
	// mapping before it is unmapped.
	buf := make([]byte, r.Len())
	if n, err := r.ReadAt(buf, 0); err != nil && !(err == io.EOF && n == len(buf)) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return buf, nil
}
