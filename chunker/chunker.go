// Package chunker splits extracted document text into overlapping windows.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultSize is the window length used for ingestion.
	DefaultSize = 1500
	// DefaultOverlap is the number of characters shared by adjacent windows.
	DefaultOverlap = 200
)

// ErrInvalidWindow is returned when the window would never advance.
var ErrInvalidWindow = errors.New("chunk size must be positive and greater than overlap")

// Validate checks a size/overlap pair.
func Validate(size, overlap int) error {
	if size <= 0 || overlap < 0 || size <= overlap {
		return fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidWindow, size, overlap)
	}
	return nil
}

// Split cuts text into windows of size characters starting at offsets
// 0, size-overlap, 2*(size-overlap), ... Each window is trimmed and empty
// windows are dropped. Offsets count runes, not bytes.
func Split(text string, size, overlap int) ([]string, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}

	runes := []rune(text)
	step := size - overlap
	chunks := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		window := strings.TrimSpace(string(runes[start:end]))
		if window != "" {
			chunks = append(chunks, window)
		}
	}
	return chunks, nil
}
