package tle

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/star/norad/internal/astro"
	"github.com/star/norad/internal/julian"
)

// ErrMalformedLine is returned for element lines that violate the fixed
// column format.
var ErrMalformedLine = errors.New("malformed TLE line")

// LineLength is the length of a TLE data line.
const LineLength = 69

// Field identifies one parsed element of a two-line set.
type Field int

const (
	FieldNORADNum Field = iota
	FieldIntlDesc
	FieldSetNum
	FieldEpochYear
	FieldEpochDay
	FieldOrbitNum
	FieldInclination
	FieldRAAN
	FieldEccentricity
	FieldArgPerigee
	FieldMeanAnomaly
	FieldMeanMotion
	FieldMeanMotionDt
	FieldMeanMotionDt2
	FieldBStar
	numFields
)

var fieldNames = [numFields]string{
	"norad_id", "intl_desc", "set_num", "epoch_year", "epoch_day", "orbit_num",
	"inclination", "raan", "eccentricity", "arg_perigee", "mean_anomaly",
	"mean_motion", "mean_motion_dt", "mean_motion_dt2", "bstar",
}

func (f Field) String() string {
	if f < 0 || f >= numFields {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldNames[f]
}

// Angular reports whether the field holds an angle.
func (f Field) Angular() bool {
	switch f {
	case FieldInclination, FieldRAAN, FieldArgPerigee, FieldMeanAnomaly:
		return true
	}
	return false
}

// Unit selects the unit of a numeric field value. Only angular fields are
// affected; everything else is always returned in its native unit.
type Unit int

const (
	UnitNative Unit = iota // as written in the element set (degrees for angles)
	UnitDegrees
	UnitRadians
	numUnits
)

// Column positions, 0-based offset and length.
const (
	col1SatNum       = 2
	len1SatNum       = 5
	col1IntlDesc     = 9
	len1IntlDesc     = 8
	col1EpochYear    = 18
	len1EpochYear    = 2
	col1EpochDay     = 20
	len1EpochDay     = 12
	col1MeanMotionDt = 33
	len1MeanMotionDt = 10
	col1MeanMotion2  = 44
	len1MeanMotion2  = 8
	col1BStar        = 53
	len1BStar        = 8
	col1ElSet        = 64
	len1ElSet        = 4

	col2Inclination = 8
	len2Inclination = 8
	col2RAAN        = 17
	len2RAAN        = 8
	col2Ecc         = 26
	len2Ecc         = 7
	col2ArgPerigee  = 34
	len2ArgPerigee  = 8
	col2MeanAnomaly = 43
	len2MeanAnomaly = 8
	col2MeanMotion  = 52
	len2MeanMotion  = 11
	col2RevNum      = 63
	len2RevNum      = 5
)

// Elements is a parsed two-line element set. All numeric values are decoded
// and converted when the set is built, so an Elements is read-only and safe
// for concurrent use.
type Elements struct {
	name  string
	line1 string
	line2 string

	fields [numFields]string
	values [numUnits][numFields]float64
	epoch  julian.Date
}

// NewElements validates and parses a satellite name and its two data lines.
func NewElements(name, line1, line2 string) (*Elements, error) {
	line1 = strings.TrimRight(line1, "\r\n")
	line2 = strings.TrimRight(line2, "\r\n")

	if err := IsValidLine(line1, 1); err != nil {
		return nil, err
	}
	if err := IsValidLine(line2, 2); err != nil {
		return nil, err
	}

	e := &Elements{
		name:  trimName(name),
		line1: line1,
		line2: line2,
	}

	e.fields[FieldNORADNum] = column(line1, col1SatNum, len1SatNum)
	e.fields[FieldIntlDesc] = column(line1, col1IntlDesc, len1IntlDesc)
	e.fields[FieldEpochYear] = column(line1, col1EpochYear, len1EpochYear)
	e.fields[FieldEpochDay] = column(line1, col1EpochDay, len1EpochDay)

	dt := "0"
	if line1[col1MeanMotionDt] == '-' {
		dt = "-0"
	}
	e.fields[FieldMeanMotionDt] = dt + column(line1, col1MeanMotionDt+1, len1MeanMotionDt)
	e.fields[FieldMeanMotionDt2] = line1[col1MeanMotion2 : col1MeanMotion2+len1MeanMotion2]
	e.fields[FieldBStar] = line1[col1BStar : col1BStar+len1BStar]
	e.fields[FieldSetNum] = column(line1, col1ElSet, len1ElSet)

	e.fields[FieldInclination] = column(line2, col2Inclination, len2Inclination)
	e.fields[FieldRAAN] = column(line2, col2RAAN, len2RAAN)
	e.fields[FieldEccentricity] = "0." + column(line2, col2Ecc, len2Ecc)
	e.fields[FieldArgPerigee] = column(line2, col2ArgPerigee, len2ArgPerigee)
	e.fields[FieldMeanAnomaly] = column(line2, col2MeanAnomaly, len2MeanAnomaly)
	e.fields[FieldMeanMotion] = column(line2, col2MeanMotion, len2MeanMotion)
	e.fields[FieldOrbitNum] = column(line2, col2RevNum, len2RevNum)

	for f := Field(0); f < numFields; f++ {
		v, err := e.decode(f)
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", f, e.fields[f], err)
		}
		e.values[UnitNative][f] = v
		e.values[UnitDegrees][f] = v
		if f.Angular() {
			e.values[UnitRadians][f] = astro.Deg2Rad(v)
		} else {
			e.values[UnitRadians][f] = v
		}
	}

	epoch, err := julian.FromYearDay(e.EpochYear(), e.values[UnitNative][FieldEpochDay])
	if err != nil {
		return nil, fmt.Errorf("epoch: %w", err)
	}
	e.epoch = epoch

	return e, nil
}

func (e *Elements) decode(f Field) (float64, error) {
	s := strings.TrimSpace(e.fields[f])
	switch f {
	case FieldMeanMotionDt2, FieldBStar:
		return ExpToDecimal(e.fields[f])
	case FieldIntlDesc:
		return leadingNumber(s), nil
	case FieldSetNum, FieldOrbitNum:
		// Frequently blank in hand-edited sets.
		if s == "" {
			return 0, nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ErrMalformedLine
	}
	return v, nil
}

// Name returns the satellite name.
func (e *Elements) Name() string { return e.name }

// Line1 returns the first data line.
func (e *Elements) Line1() string { return e.line1 }

// Line2 returns the second data line.
func (e *Elements) Line2() string { return e.line2 }

// NORADID returns the catalog number.
func (e *Elements) NORADID() int { return int(e.values[UnitNative][FieldNORADNum]) }

// Field returns the numeric value of f in the requested unit.
func (e *Elements) Field(f Field, u Unit) float64 {
	if f < 0 || f >= numFields || u < 0 || u >= numUnits {
		return 0
	}
	return e.values[u][f]
}

// FieldString returns the field text as parsed from its columns. The
// exponent fields are returned in their original implied-decimal form.
func (e *Elements) FieldString(f Field) string {
	if f < 0 || f >= numFields {
		return ""
	}
	return strings.TrimSpace(e.fields[f])
}

// Units returns the display suffix for f in unit u.
func (e *Elements) Units(f Field, u Unit) string {
	switch {
	case f.Angular() && u == UnitRadians:
		return " radians"
	case f.Angular():
		return " degrees"
	case f == FieldMeanMotion:
		return " revs / day"
	}
	return ""
}

// EpochYear returns the four-digit epoch year. Two-digit years from 57
// map to the 1900s, the rest to the 2000s.
func (e *Elements) EpochYear() int {
	y := int(e.values[UnitNative][FieldEpochYear])
	if y < 57 {
		return y + 2000
	}
	return y + 1900
}

// Epoch returns the element set epoch.
func (e *Elements) Epoch() julian.Date { return e.epoch }

// ChecksumOK reports whether both lines carry a matching modulo-10
// checksum. Validity never depends on it.
func (e *Elements) ChecksumOK() bool {
	return checksumMatches(e.line1) && checksumMatches(e.line2)
}

func column(line string, col, n int) string {
	end := col + n
	if end > len(line) {
		end = len(line)
	}
	if col >= end {
		return ""
	}
	return strings.TrimSpace(line[col:end])
}

// trimName drops any annotation after the first double space.
func trimName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "0 ")
	if i := strings.Index(name, "  "); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}

func leadingNumber(s string) float64 {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	v, _ := strconv.ParseFloat(s[:end], 64)
	return v
}
