// Package verify cross-checks the native propagator against the
// go-satellite SGP4 implementation.
package verify

import (
	"errors"
	"fmt"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/star/norad/internal/coord"
	"github.com/star/norad/internal/norad"
	"github.com/star/norad/internal/tle"
)

// ErrReference is returned when the reference implementation cannot
// initialize or propagate the element set.
var ErrReference = errors.New("reference propagation failed")

// Sample is the difference between both implementations at one instant.
type Sample struct {
	Time     time.Time `json:"time"`
	PosDelta float64   `json:"pos_delta_km"`
	VelDelta float64   `json:"vel_delta_km_s"`
}

// Report summarizes a comparison run.
type Report struct {
	NORADID     int      `json:"norad_id"`
	Name        string   `json:"name"`
	Model       string   `json:"model"`
	Samples     []Sample `json:"samples"`
	MaxPosDelta float64  `json:"max_pos_delta_km"`
	MaxVelDelta float64  `json:"max_vel_delta_km_s"`
}

// Times returns n instants starting at start, step apart.
func Times(start time.Time, step time.Duration, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * step)
	}
	return out
}

// Compare propagates el with both implementations at each time. The
// reference resolves whole seconds, so times are truncated to the second.
// It also drops the fractional seconds of the element epoch, so the native
// model is evaluated at the same time since that truncated epoch. Without
// the shift a LEO object shows a constant along-track delta of up to one
// second of motion.
func Compare(el *tle.Elements, times []time.Time) (Report, error) {
	o, err := norad.NewOrbit(el)
	if err != nil {
		return Report{}, fmt.Errorf("native orbit for %d: %w", el.NORADID(), err)
	}

	// Lines come from a parsed Elements, so the reference parser will not
	// hit its fatal paths.
	ref := satellite.TLEToSat(el.Line1(), el.Line2(), satellite.GravityWGS72)
	if ref.Error != 0 {
		return Report{}, fmt.Errorf("%w: init code %d %s", ErrReference, ref.Error, ref.ErrorStr)
	}

	refEpoch := el.Epoch().Time().UTC().Truncate(time.Second)

	rep := Report{
		NORADID: el.NORADID(),
		Name:    el.Name(),
		Model:   o.Model().String(),
		Samples: make([]Sample, 0, len(times)),
	}

	for _, t := range times {
		t = t.UTC().Truncate(time.Second)

		eci, err := o.Position(t.Sub(refEpoch).Minutes())
		if err != nil {
			return rep, fmt.Errorf("native at %s: %w", t.Format(time.RFC3339), err)
		}

		year, month, day := t.Date()
		hour, minute, sec := t.Clock()
		pos, vel := satellite.Propagate(ref, year, int(month), day, hour, minute, sec)
		if !finite(pos) || !finite(vel) {
			return rep, fmt.Errorf("%w: non-finite state at %s", ErrReference, t.Format(time.RFC3339))
		}

		s := Sample{
			Time:     t,
			PosDelta: delta(eci.Pos, pos),
			VelDelta: delta(eci.Vel, vel),
		}
		rep.Samples = append(rep.Samples, s)
		rep.MaxPosDelta = math.Max(rep.MaxPosDelta, s.PosDelta)
		rep.MaxVelDelta = math.Max(rep.MaxVelDelta, s.VelDelta)
	}
	return rep, nil
}

func delta(v coord.Vector, r satellite.Vector3) float64 {
	return v.Sub(coord.Vector{X: r.X, Y: r.Y, Z: r.Z}).Magnitude()
}

func finite(v satellite.Vector3) bool {
	for _, x := range [...]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
