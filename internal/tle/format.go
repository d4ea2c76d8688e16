package tle

import (
	"fmt"
	"strconv"
	"strings"
)

// ExpToDecimal decodes the implied-decimal exponent notation used by the
// drag fields, e.g. " 12345-3" is 0.12345e-3. The decimal point sits to the
// left of the first mantissa digit.
func ExpToDecimal(s string) (float64, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, nil
	}

	sign := 1.0
	switch t[0] {
	case '-':
		sign = -1.0
		t = t[1:]
	case '+':
		t = t[1:]
	}

	i := strings.LastIndexAny(t, "+-")
	if i < 1 {
		return 0, fmt.Errorf("exponent notation %q: %w", s, ErrMalformedLine)
	}
	mantissa, exponent := strings.TrimSpace(t[:i]), t[i:]

	if _, err := strconv.ParseUint(mantissa, 10, 64); err != nil {
		return 0, fmt.Errorf("mantissa %q: %w", mantissa, ErrMalformedLine)
	}
	if _, err := strconv.Atoi(exponent); err != nil {
		return 0, fmt.Errorf("exponent %q: %w", exponent, ErrMalformedLine)
	}

	// Parsing the decimal text keeps the result correctly rounded.
	v, err := strconv.ParseFloat("0."+mantissa+"e"+exponent, 64)
	if err != nil {
		return 0, fmt.Errorf("exponent notation %q: %w", s, ErrMalformedLine)
	}
	return sign * v, nil
}

// IsValidLine checks that line is a TLE data line numbered n: exactly
// LineLength characters, starting with the line number followed by a
// blank.
func IsValidLine(line string, n int) error {
	if len(line) != LineLength {
		return fmt.Errorf("line %d: length %d, want %d: %w", n, len(line), LineLength, ErrMalformedLine)
	}
	if int(line[0]-'0') != n {
		return fmt.Errorf("line %d: starts with %q: %w", n, line[0], ErrMalformedLine)
	}
	if line[1] != ' ' {
		return fmt.Errorf("line %d: column 2 is not blank: %w", n, ErrMalformedLine)
	}
	return nil
}

// Checksum returns the modulo-10 checksum over all but the last character
// of line. Digits count their value and minus signs count one.
func Checksum(line string) int {
	sum := 0
	for i := 0; i < len(line)-1; i++ {
		c := line[i]
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

func checksumMatches(line string) bool {
	if line == "" {
		return false
	}
	last := line[len(line)-1]
	if last < '0' || last > '9' {
		return false
	}
	return Checksum(line) == int(last-'0')
}
