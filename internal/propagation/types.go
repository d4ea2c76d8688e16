package propagation

import "time"

// Keyframe holds the positions of all satellites at a single point in time.
type Keyframe struct {
	Timestamp  time.Time
	Satellites []SatellitePosition
}

// SatellitePosition is one satellite's state at a keyframe time in the
// inertial, Earth-fixed and geodetic frames.
type SatellitePosition struct {
	NORADID int
	Model   string // sgp4 | sdp4

	PositionECI [3]float64 // km, true equator mean equinox
	VelocityECI [3]float64 // km/s

	PositionECEF [3]float64 // m
	VelocityECEF [3]float64 // m/s

	LatDeg float64
	LonDeg float64 // (-180, 180], negative west
	AltKm  float64
}

// PropConfig holds propagation configuration loaded from environment variables.
type PropConfig struct {
	Workers int           // Worker pool size (default: runtime.NumCPU())
	Step    time.Duration // Keyframe interval (default: 5s)
	Horizon time.Duration // Propagation horizon (default: 600s)
}
