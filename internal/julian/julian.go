// Package julian represents instants as Julian dates and derives the sidereal
// angles needed to rotate between inertial and Earth-fixed frames.
package julian

import (
	"errors"
	"fmt"
	"math"
	"time"

	mjulian "github.com/soniakeys/meeus/v3/julian"

	"github.com/star/norad/internal/astro"
)

// Reference epochs.
const (
	EpochJan1_00h1900 = 2415019.5 // Jan 1.0 1900
	EpochJan1_12h1900 = 2415020.0 // Jan 1.5 1900
	EpochJan1_12h2000 = 2451545.0 // Jan 1.5 2000
)

// ErrOutOfRange is returned when a date lies outside the supported
// Gregorian range (1582, 3000) or the day of year outside [0, 366.5].
var ErrOutOfRange = errors.New("julian date out of range")

// Date is a Julian day count (noon-based). The zero value is not meaningful;
// construct with New, FromYearDay or FromTime.
type Date struct {
	jd float64
}

// FromJD wraps a raw Julian day number.
func FromJD(jd float64) Date {
	return Date{jd: jd}
}

// FromYearDay builds a date from a year and a 1-based fractional day of the
// year (Jan 1 00h is day 1.0).
func FromYearDay(year int, day float64) (Date, error) {
	if year <= 1582 || year >= 3000 {
		return Date{}, fmt.Errorf("year %d: %w", year, ErrOutOfRange)
	}
	if day < 0.0 || day > 366.5 {
		return Date{}, fmt.Errorf("day %.8f: %w", day, ErrOutOfRange)
	}

	y := year - 1
	a := y / 100
	b := 2 - a + a/4
	// 428 is int(30.6001 * 14), the month term for January of the next
	// year in the Gregorian day count.
	newYears := float64(int(365.25*float64(y))) + 428.0 + 1720994.5 + float64(b)

	return Date{jd: newYears + day}, nil
}

// New builds a date from calendar fields in UTC.
func New(year, mon, day, hour, min int, sec float64) (Date, error) {
	f1 := int((275.0 * float64(mon)) / 9.0)
	f2 := int((float64(mon) + 9.0) / 12.0)

	var n int
	if IsLeapYear(year) {
		n = f1 - f2 + day - 30
	} else {
		n = f1 - 2*f2 + day - 30
	}

	dayOfYear := float64(n) + (float64(hour)+(float64(min)+sec/60.0)/60.0)/24.0
	return FromYearDay(year, dayOfYear)
}

// FromTime converts a wall-clock instant. Sub-second precision is kept.
// Instants outside the supported range yield the raw meeus conversion.
func FromTime(t time.Time) Date {
	t = t.UTC()
	sec := float64(t.Second()) + float64(t.Nanosecond())/1e9
	d, err := New(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), sec)
	if err != nil {
		return Date{jd: mjulian.TimeToJD(t)}
	}
	return d
}

// IsLeapYear reports whether y is a Gregorian leap year.
func IsLeapYear(y int) bool {
	return (y%4 == 0 && y%100 != 0) || y%400 == 0
}

// JD returns the Julian day number.
func (d Date) JD() float64 { return d.jd }

// FromJan1_00h1900 returns days elapsed since 1900 Jan 1.0.
func (d Date) FromJan1_00h1900() float64 { return d.jd - EpochJan1_00h1900 }

// FromJan1_12h1900 returns days elapsed since 1900 Jan 1.5.
func (d Date) FromJan1_12h1900() float64 { return d.jd - EpochJan1_12h1900 }

// FromJan1_12h2000 returns days elapsed since 2000 Jan 1.5 (J2000).
func (d Date) FromJan1_12h2000() float64 { return d.jd - EpochJan1_12h2000 }

// GMST returns Greenwich Mean Sidereal Time in radians, [0, 2π).
// IAU 1982 polynomial in Julian centuries of UT1 since J2000.
func (d Date) GMST() float64 {
	ut := math.Mod(d.jd+0.5, 1.0)
	tu := (d.FromJan1_12h2000() - ut) / 36525.0

	gmst := 24110.54841 + tu*(8640184.812866+tu*(0.093104-tu*6.2e-06))
	gmst = math.Mod(gmst+astro.SecPerDay*astro.OmegaE*ut, astro.SecPerDay)
	if gmst < 0.0 {
		gmst += astro.SecPerDay
	}

	return astro.TwoPi * (gmst / astro.SecPerDay)
}

// LMST returns Local Mean Sidereal Time in radians for an east longitude
// in radians.
func (d Date) LMST(lon float64) float64 {
	return math.Mod(d.GMST()+lon, astro.TwoPi)
}

// Components returns the calendar year, month (1..12) and fractional day
// of month.
func (d Date) Components() (year, month int, dom float64) {
	jdAdj := d.jd + 0.5
	z := int(jdAdj)
	f := jdAdj - float64(z)

	alpha := float64(int((float64(z) - 1867216.25) / 36524.25))
	a := float64(z) + 1 + alpha - float64(int(alpha/4.0))
	b := a + 1524.0
	c := int((b - 122.1) / 365.25)
	dd := int(float64(c) * 365.25)
	e := int((b - float64(dd)) / 30.6001)

	dom = b - float64(dd) - float64(int(float64(e)*30.6001)) + f
	if e < 14 {
		month = e - 1
	} else {
		month = e - 13
	}
	if month > 2 {
		year = c - 4716
	} else {
		year = c - 4715
	}
	return year, month, dom
}

// Time converts the date to a UTC time.Time.
func (d Date) Time() time.Time {
	return mjulian.JDToTime(d.jd).UTC()
}

// AddDay returns the date shifted by days.
func (d Date) AddDay(days float64) Date { return Date{jd: d.jd + days} }

// AddHour returns the date shifted by hours.
func (d Date) AddHour(hr float64) Date { return Date{jd: d.jd + hr/astro.HrPerDay} }

// AddMin returns the date shifted by minutes.
func (d Date) AddMin(min float64) Date { return Date{jd: d.jd + min/astro.MinPerDay} }

// AddSec returns the date shifted by seconds.
func (d Date) AddSec(sec float64) Date { return Date{jd: d.jd + sec/astro.SecPerDay} }

// SpanDay returns d - other in days.
func (d Date) SpanDay(other Date) float64 { return d.jd - other.jd }

// SpanHour returns d - other in hours.
func (d Date) SpanHour(other Date) float64 { return d.SpanDay(other) * astro.HrPerDay }

// SpanMin returns d - other in minutes.
func (d Date) SpanMin(other Date) float64 { return d.SpanDay(other) * astro.MinPerDay }

// SpanSec returns d - other in seconds.
func (d Date) SpanSec(other Date) float64 { return d.SpanDay(other) * astro.SecPerDay }

// String formats the date as its UTC calendar time.
func (d Date) String() string {
	return d.Time().Format("2006-01-02T15:04:05.000Z")
}
