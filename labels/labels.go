// Package labels loads class-id → display-name maps from the labels file
// format described in spec §6: either one label per line (implicit id = line
// number starting at 0) or "<id><whitespace><label>" per line.
package labels

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Map is a class id → display string lookup. A missing id renders as the
// decimal id (see String).
type Map struct {
	names map[int]string
}

// Load reads a labels file from path.
func Load(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("labels: open %q: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a labels file from r.
func Parse(r *os.File) (*Map, error) {
	m := &Map{names: make(map[int]string)}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		text := strings.TrimRight(scanner.Text(), "\r\n")
		if text == "" {
			line++
			continue
		}
		if id, label, ok := splitIDLabel(text); ok {
			m.names[id] = label
		} else {
			m.names[line] = strings.TrimSpace(text)
		}
		line++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("labels: read: %w", err)
	}
	return m, nil
}

// splitIDLabel tries to split "<id><whitespace><label>" form; ok is false if
// the first whitespace-delimited field is not an integer, or there is no
// label after it, meaning the whole line is the label.
func splitIDLabel(text string) (id int, label string, ok bool) {
	trimmed := strings.TrimSpace(text)
	fields := strings.Fields(trimmed)
	if len(fields) < 2 {
		return 0, "", false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, fields[0]))
	return n, rest, true
}

// Lookup returns the display name for id, or its decimal string if unmapped.
func (m *Map) Lookup(id int) string {
	if m == nil {
		return strconv.Itoa(id)
	}
	if name, ok := m.names[id]; ok {
		return name
	}
	return strconv.Itoa(id)
}

// Len returns the number of mapped ids.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.names)
}
