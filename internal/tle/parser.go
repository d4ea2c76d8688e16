package tle

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ErrNotFound is returned when no entry matches a selection.
var ErrNotFound = errors.New("satellite not found")

// Parse reads 3-line NORAD TLE format from r and returns parsed entries.
// Malformed entries are skipped with a warning log.
func Parse(r io.Reader, logger *slog.Logger) ([]TLEEntry, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var entries []TLEEntry
	for i := 0; i+2 < len(lines); {
		name := lines[i]
		line1 := lines[i+1]
		line2 := lines[i+2]

		// Resynchronise on the next line when the triplet is misaligned.
		if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", name)
			i++
			continue
		}

		el, err := NewElements(name, line1, line2)
		if err != nil {
			logger.Warn("skipping invalid TLE entry", "line_index", i, "name", name, "error", err)
			i += 3
			continue
		}
		if !el.ChecksumOK() {
			logger.Debug("TLE checksum mismatch", "norad_id", el.NORADID(), "name", el.Name())
		}

		entries = append(entries, entryFromElements(el))
		i += 3
	}

	return entries, nil
}

func entryFromElements(el *Elements) TLEEntry {
	return TLEEntry{
		NORADID:  el.NORADID(),
		Name:     el.Name(),
		Epoch:    el.Epoch().Time(),
		Line1:    el.Line1(),
		Line2:    el.Line2(),
		Elements: el,
	}
}

// FindByName returns the first entry whose name contains name, ignoring case.
func FindByName(entries []TLEEntry, name string) (TLEEntry, error) {
	want := strings.ToUpper(strings.TrimSpace(name))
	for _, e := range entries {
		if strings.Contains(strings.ToUpper(e.Name), want) {
			return e, nil
		}
	}
	return TLEEntry{}, fmt.Errorf("%q: %w", name, ErrNotFound)
}

// FindByIndex returns the entry at position index of a plain 3-line file,
// i.e. the set starting at line 3*index, without any resynchronisation.
func FindByIndex(r io.Reader, index int) (TLEEntry, error) {
	if index < 0 {
		return TLEEntry{}, fmt.Errorf("index %d: %w", index, ErrNotFound)
	}

	scanner := bufio.NewScanner(r)
	first := 3 * index
	var set []string
	for n := 0; scanner.Scan(); n++ {
		if n < first {
			continue
		}
		set = append(set, strings.TrimRight(scanner.Text(), "\r\n "))
		if len(set) == 3 {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return TLEEntry{}, fmt.Errorf("reading TLE data: %w", err)
	}
	if len(set) < 3 {
		return TLEEntry{}, fmt.Errorf("index %d: %w", index, ErrNotFound)
	}

	el, err := NewElements(set[0], set[1], set[2])
	if err != nil {
		return TLEEntry{}, fmt.Errorf("index %d: %w", index, err)
	}
	return entryFromElements(el), nil
}
