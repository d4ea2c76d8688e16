package stream

import (
	"fmt"
	"strings"
	"time"

	"github.com/star/norad/internal/propagation"
	"github.com/star/norad/internal/tle"
)

// Frame selects which coordinates a batch carries.
type Frame string

const (
	FrameECEF Frame = "ECEF" // metres, Earth-fixed
	FrameECI  Frame = "ECI"  // km, true equator mean equinox
	FrameGeo  Frame = "GEO"  // latitude deg, longitude deg, altitude km
)

// ParseFrame accepts a frame name in any case. An empty name is ECEF.
func ParseFrame(s string) (Frame, error) {
	switch f := Frame(strings.ToUpper(s)); f {
	case "":
		return FrameECEF, nil
	case FrameECEF, FrameECI, FrameGeo:
		return f, nil
	}
	return "", fmt.Errorf("unknown frame %q", s)
}

func (f Frame) pick(s propagation.SatellitePosition) [3]float64 {
	switch f {
	case FrameECI:
		return s.PositionECI
	case FrameGeo:
		return [3]float64{s.LatDeg, s.LonDeg, s.AltKm}
	}
	return s.PositionECEF
}

type metadataMessage struct {
	Type        string `json:"type"`
	Source      string `json:"source"`
	FetchedAt   string `json:"fetched_at"`
	TLEAge      int    `json:"tle_age_seconds"`
	EpochMin    string `json:"epoch_min"`
	EpochMax    string `json:"epoch_max"`
	Satellites  int    `json:"satellites"`
	Frame       Frame  `json:"frame"`
	StepSeconds int    `json:"step_seconds"`
}

func newMetadataMessage(ds *tle.TLEDataset, frame Frame, step time.Duration, now time.Time) metadataMessage {
	return metadataMessage{
		Type:        "metadata",
		Source:      ds.Source,
		FetchedAt:   ds.FetchedAt.UTC().Format(time.RFC3339),
		TLEAge:      int(now.Sub(ds.FetchedAt).Seconds()),
		EpochMin:    ds.EpochRange.Min.UTC().Format(time.RFC3339),
		EpochMax:    ds.EpochRange.Max.UTC().Format(time.RFC3339),
		Satellites:  len(ds.Satellites),
		Frame:       frame,
		StepSeconds: int(step.Seconds()),
	}
}

type keyframeBatchMessage struct {
	Type  string       `json:"type"`
	T     string       `json:"t"`
	Frame Frame        `json:"frame"`
	Sat   []satPayload `json:"sat"`
}

type satPayload struct {
	ID int          `json:"id"`
	M  string       `json:"m,omitempty"` // sgp4 | sdp4
	P  [3]float64   `json:"p"`
	Tr [][3]float64 `json:"tr,omitempty"`
}

// batchOptions shape one batch message.
type batchOptions struct {
	frame Frame
	ids   map[int]bool // nil means every satellite
}

func (o batchOptions) want(id int) bool {
	return o.ids == nil || o.ids[id]
}

// buildBatchMessage formats kf for the wire. Trail keyframes, oldest
// first, add each satellite's recent path.
func buildBatchMessage(kf *propagation.Keyframe, trailKFs []*propagation.Keyframe, opts batchOptions) keyframeBatchMessage {
	if opts.frame == "" {
		opts.frame = FrameECEF
	}

	var trails map[int][][3]float64
	if len(trailKFs) > 0 {
		trails = make(map[int][][3]float64, len(kf.Satellites))
		for _, tkf := range trailKFs {
			for _, s := range tkf.Satellites {
				if opts.want(s.NORADID) {
					trails[s.NORADID] = append(trails[s.NORADID], opts.frame.pick(s))
				}
			}
		}
	}

	sats := make([]satPayload, 0, len(kf.Satellites))
	for _, s := range kf.Satellites {
		if !opts.want(s.NORADID) {
			continue
		}
		sats = append(sats, satPayload{
			ID: s.NORADID,
			M:  s.Model,
			P:  opts.frame.pick(s),
			Tr: trails[s.NORADID],
		})
	}
	return keyframeBatchMessage{
		Type:  "keyframe_batch",
		T:     kf.Timestamp.UTC().Format(time.RFC3339),
		Frame: opts.frame,
		Sat:   sats,
	}
}
