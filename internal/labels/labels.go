// Package labels builds the immutable class-index to display-name table
// loaded alongside a model.
package labels

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Background is the reserved class index for "no recognizable item".
// It is always excluded from top-result selection.
const Background = 0

// Table maps class indices to display names. Immutable after Parse;
// safe for shared read-only use.
type Table struct {
	names []string
}

// Parse reads a delimited label source with one `index,name` row per
// class and a header row that is skipped. The table always has exactly
// classCount entries; rows missing a name (or absent entirely) are
// synthesized as "Unknown Item N". Rows outside [0, classCount) are
// ignored.
func Parse(r io.Reader, classCount int) (*Table, error) {
	if classCount <= 0 {
		return nil, fmt.Errorf("labels: class count must be positive, got %d", classCount)
	}

	names := make([]string, classCount)

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		if line == 1 {
			continue // header row
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		idxField, name, _ := strings.Cut(text, ",")
		idx, err := strconv.Atoi(strings.TrimSpace(idxField))
		if err != nil {
			return nil, fmt.Errorf("labels: line %d: bad class index %q: %w", line, idxField, err)
		}
		if idx < 0 || idx >= classCount {
			continue
		}
		names[idx] = strings.TrimSpace(name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("labels: read: %w", err)
	}

	for i, name := range names {
		if name == "" {
			names[i] = fmt.Sprintf("Unknown Item %d", i)
		}
	}

	return &Table{names: names}, nil
}

// Len returns the number of classes, equal to the model's output class count.
func (t *Table) Len() int {
	return len(t.names)
}

// Name returns the display name for a class index.
func (t *Table) Name(index int) string {
	if index < 0 || index >= len(t.names) {
		return fmt.Sprintf("Unknown Item %d", index)
	}
	return t.names[index]
}
