// Package passes predicts when satellites rise above, culminate over and
// set below the horizon of a ground site.
package passes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/floats"

	"github.com/star/norad/internal/astro"
	"github.com/star/norad/internal/coord"
	"github.com/star/norad/internal/metrics"
	"github.com/star/norad/internal/norad"
	"github.com/star/norad/internal/observability"
	"github.com/star/norad/internal/propagation"
	"github.com/star/norad/internal/site"
	"github.com/star/norad/internal/tle"
)

// GroundTrackPoint is a sub-satellite position at a specific time during a pass.
type GroundTrackPoint struct {
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude_km"`
	Elevation float64   `json:"elevation"` // degrees above the site horizon
}

// PassEvent describes a single satellite pass over a site. Angles are in
// degrees, azimuth clockwise from north.
type PassEvent struct {
	StartTime        time.Time          `json:"start_time"`
	MaxElevationTime time.Time          `json:"max_elevation_time"`
	EndTime          time.Time          `json:"end_time"`
	DurationSeconds  float64            `json:"duration_seconds"`
	MaxElevation     float64            `json:"max_elevation"`
	AzimuthAtMax     float64            `json:"azimuth_at_max"`
	RangeAtMaxKm     float64            `json:"range_at_max_km"`
	StartAzimuth     float64            `json:"start_azimuth"`
	EndAzimuth       float64            `json:"end_azimuth"`
	Sunlit           bool               `json:"sunlit"`
	Visible          bool               `json:"visible"`
	GroundTrack      []GroundTrackPoint `json:"ground_track"`
}

// SatellitePasses holds the predicted passes for one satellite. Passes
// found before an error are kept.
type SatellitePasses struct {
	NORADID int         `json:"norad_id"`
	Model   string      `json:"model,omitempty"`
	Passes  []PassEvent `json:"passes"`
	Error   string      `json:"error,omitempty"`
}

// Request holds the parameters for a pass prediction request.
type Request struct {
	Site         site.Site
	Entries      []tle.TLEEntry
	Start        time.Time
	Horizon      time.Duration
	MinElevation float64 // degrees
	MaxPasses    int     // per satellite, default 10
	Logger       *slog.Logger
}

const (
	coarseStep      = 30 * time.Second
	groundTrackStep = 10 * time.Second
	resolution      = time.Second
	minPassDur      = 10 * time.Second

	defaultMaxPasses = 10
)

// Predict computes passes for every entry of req. Each satellite gets its
// own orbit and goroutine, bounded by the CPU count.
func Predict(ctx context.Context, req Request) []SatellitePasses {
	ctx, span := observability.StartSpan(ctx, "passes.predict", 0,
		attribute.Int("passes.satellites", len(req.Entries)),
		attribute.Float64("passes.horizon_hours", req.Horizon.Hours()),
	)
	defer span.End()

	if req.MaxPasses <= 0 {
		req.MaxPasses = defaultMaxPasses
	}
	if req.Logger == nil {
		req.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	results := make([]SatellitePasses, len(req.Entries))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	for i, entry := range req.Entries {
		wg.Add(1)
		go func(idx int, e tle.TLEEntry) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = SatellitePasses{NORADID: e.NORADID, Error: "cancelled"}
				return
			}
			results[idx] = predictSatellite(ctx, req, e)
		}(i, entry)
	}

	wg.Wait()
	return results
}

func predictSatellite(ctx context.Context, req Request, entry tle.TLEEntry) SatellitePasses {
	ctx, span := observability.StartSpan(ctx, "passes.satellite", entry.NORADID)
	defer span.End()

	res := SatellitePasses{NORADID: entry.NORADID}
	o, err := propagation.NewOrbit(entry, req.Logger)
	if err != nil {
		res.Error = fmt.Sprintf("orbit: %v", err)
		return res
	}
	res.Model = o.Model().String()

	sc := &scanner{
		orbit: o,
		site:  req.Site,
		minEl: astro.Deg2Rad(req.MinElevation),
	}
	res.Passes, err = sc.scan(ctx, req.Start, req.Horizon, req.MaxPasses)
	if err != nil {
		var decay *norad.DecayError
		if errors.As(err, &decay) {
			metrics.RecordDecay(res.Model)
		}
		res.Error = err.Error()
		req.Logger.Debug("pass scan stopped",
			"norad_id", entry.NORADID,
			"passes", len(res.Passes),
			"error", err,
		)
	}
	return res
}

// scanner searches one orbit for horizon crossings. Not safe for
// concurrent use, like the orbit it holds.
type scanner struct {
	orbit *norad.Orbit
	site  site.Site
	minEl float64 // radians
}

// sample is the satellite state seen from the site at one instant.
type sample struct {
	t    time.Time
	eci  coord.ECI
	topo coord.Topo
}

func (s *scanner) look(t time.Time) (sample, error) {
	eci, err := s.orbit.PositionAt(t)
	if err != nil {
		return sample{}, err
	}
	return sample{t: t, eci: eci, topo: s.site.LookAngle(eci)}, nil
}

func (s *scanner) above(x sample) bool { return x.topo.El >= s.minEl }

// offsets spreads n >= 2 instants evenly over [0, span].
func offsets(span, step time.Duration) []time.Duration {
	n := int(math.Ceil(float64(span)/float64(step))) + 1
	if n < 2 {
		n = 2
	}
	secs := floats.Span(make([]float64, n), 0, span.Seconds())
	out := make([]time.Duration, n)
	for i, sec := range secs {
		out[i] = time.Duration(sec * float64(time.Second))
	}
	return out
}

// scan walks [start, start+horizon] at the coarse step and refines each
// crossing. A satellite already up at start, or still up at the end, has
// its pass clipped to the window.
func (s *scanner) scan(ctx context.Context, start time.Time, horizon time.Duration, maxPasses int) ([]PassEvent, error) {
	var (
		passes []PassEvent
		prev   sample
		rise   sample
	)
	for i, off := range offsets(horizon, coarseStep) {
		if err := ctx.Err(); err != nil {
			return passes, err
		}
		cur, err := s.look(start.Add(off))
		if err != nil {
			return passes, err
		}

		switch up := s.above(cur); {
		case i == 0:
			rise = cur
		case up && !s.above(prev):
			if rise, err = s.crossing(prev, cur); err != nil {
				return passes, err
			}
		case !up && s.above(prev):
			set, err := s.crossing(prev, cur)
			if err != nil {
				return passes, err
			}
			if set.t.Sub(rise.t) >= minPassDur {
				p, err := s.pass(rise, set)
				if err != nil {
					return passes, err
				}
				if passes = append(passes, p); len(passes) >= maxPasses {
					return passes, nil
				}
			}
		}
		prev = cur
	}

	if s.above(prev) && prev.t.Sub(rise.t) >= minPassDur {
		p, err := s.pass(rise, prev)
		if err != nil {
			return passes, err
		}
		passes = append(passes, p)
	}
	return passes, nil
}

// crossing bisects between two samples on opposite sides of the minimum
// elevation and returns the sample on the above side, within resolution.
func (s *scanner) crossing(a, b sample) (sample, error) {
	aUp := s.above(a)
	for b.t.Sub(a.t) > resolution {
		mid, err := s.look(a.t.Add(b.t.Sub(a.t) / 2))
		if err != nil {
			return sample{}, err
		}
		if s.above(mid) == aUp {
			a = mid
		} else {
			b = mid
		}
	}
	if aUp {
		return a, nil
	}
	return b, nil
}

// culmination narrows [a, b] around the elevation maximum by ternary
// search.
func (s *scanner) culmination(a, b time.Time) (sample, error) {
	for b.Sub(a) > resolution {
		third := b.Sub(a) / 3
		x1, err := s.look(a.Add(third))
		if err != nil {
			return sample{}, err
		}
		x2, err := s.look(b.Add(-third))
		if err != nil {
			return sample{}, err
		}
		if x1.topo.El < x2.topo.El {
			a = x1.t
		} else {
			b = x2.t
		}
	}
	return s.look(a.Add(b.Sub(a) / 2))
}

// pass builds the event between rise and set: ground track, refined
// culmination and illumination at culmination.
func (s *scanner) pass(rise, set sample) (PassEvent, error) {
	dur := set.t.Sub(rise.t)
	offs := offsets(dur, groundTrackStep)

	track := make([]GroundTrackPoint, 0, len(offs))
	best := rise
	for _, off := range offs {
		x, err := s.look(rise.t.Add(off))
		if err != nil {
			return PassEvent{}, err
		}
		if x.topo.El > best.topo.El {
			best = x
		}
		g := x.eci.ToGeo()
		track = append(track, GroundTrackPoint{
			Time:      x.t,
			Latitude:  g.LatDeg(),
			Longitude: g.LonDeg(),
			Altitude:  g.Alt,
			Elevation: x.topo.ElDeg(),
		})
	}

	lo, hi := best.t.Add(-groundTrackStep), best.t.Add(groundTrackStep)
	if lo.Before(rise.t) {
		lo = rise.t
	}
	if hi.After(set.t) {
		hi = set.t
	}
	if peak, err := s.culmination(lo, hi); err != nil {
		return PassEvent{}, err
	} else if peak.topo.El > best.topo.El {
		best = peak
	}

	sun := sunPosition(best.eci.Date)
	lit := sunlit(best.eci, sun)
	dark := s.site.LookAngle(sun).ElDeg() < civilTwilightDeg

	return PassEvent{
		StartTime:        rise.t,
		MaxElevationTime: best.t,
		EndTime:          set.t,
		DurationSeconds:  dur.Seconds(),
		MaxElevation:     best.topo.ElDeg(),
		AzimuthAtMax:     best.topo.AzDeg(),
		RangeAtMaxKm:     best.topo.Range,
		StartAzimuth:     rise.topo.AzDeg(),
		EndAzimuth:       set.topo.AzDeg(),
		Sunlit:           lit,
		Visible:          lit && dark,
		GroundTrack:      track,
	}, nil
}
