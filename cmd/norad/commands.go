package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/star/norad/internal/norad"
	"github.com/star/norad/internal/passes"
	"github.com/star/norad/internal/tle"
	"github.com/star/norad/internal/tracker"
	"github.com/star/norad/internal/verify"
)

const timeLayout = "2006-01-02 15:04:05"

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Print the decoded element sets of a TLE file",
	Args:  cobra.NoArgs,
	RunE:  runParse,
}

var propagateCmd = &cobra.Command{
	Use:   "propagate",
	Short: "Print sub-satellite points at a fixed step",
	Args:  cobra.NoArgs,
	RunE:  runPropagate,
}

var lookCmd = &cobra.Command{
	Use:   "look",
	Short: "Print look angles from the site at one instant",
	Args:  cobra.NoArgs,
	RunE:  runLook,
}

var passesCmd = &cobra.Command{
	Use:   "passes",
	Short: "Predict passes over the site",
	Long: `Predict passes over the site. Without --sat or --index every satellite
of the file is predicted.`,
	Args: cobra.NoArgs,
	RunE: runPasses,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Compare propagation against the go-satellite SGP4 implementation",
	Args:  cobra.NoArgs,
	RunE:  runVerify,
}

func init() {
	propagateCmd.Flags().String("start", "", "start time, RFC 3339 (default now)")
	propagateCmd.Flags().Int("step", 60, "step in seconds")
	propagateCmd.Flags().Int("count", 10, "number of positions")

	lookCmd.Flags().String("time", "", "instant, RFC 3339 (default now)")

	passesCmd.Flags().String("start", "", "window start, RFC 3339 (default now)")
	passesCmd.Flags().Float64("hours", 24, "window length in hours")
	passesCmd.Flags().Float64("min-elevation", 10, "minimum elevation in degrees")
	passesCmd.Flags().Int("max-passes", 10, "passes per satellite")

	verifyCmd.Flags().String("start", "", "first sample, RFC 3339 (default element epoch)")
	verifyCmd.Flags().Int("step", 60, "sample step in minutes")
	verifyCmd.Flags().Int("count", 25, "number of samples")
	verifyCmd.Flags().Float64("tolerance", 0, "fail when a position delta exceeds this many km (0 disables)")
}

func timeFlag(cmd *cobra.Command, name string, def time.Time) (time.Time, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "" {
		return def, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return t.UTC(), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type parsedSet struct {
	NORADID       int               `json:"norad_id"`
	Name          string            `json:"name"`
	Epoch         time.Time         `json:"epoch"`
	ChecksumOK    bool              `json:"checksum_ok"`
	Model         string            `json:"model,omitempty"`
	PeriodMinutes float64           `json:"period_minutes,omitempty"`
	PerigeeKm     float64           `json:"perigee_km,omitempty"`
	ApogeeKm      float64           `json:"apogee_km,omitempty"`
	Fields        map[string]string `json:"fields"`
	Error         string            `json:"error,omitempty"`
}

func describe(el *tle.Elements) parsedSet {
	p := parsedSet{
		NORADID:    el.NORADID(),
		Name:       el.Name(),
		Epoch:      el.Epoch().Time(),
		ChecksumOK: el.ChecksumOK(),
		Fields:     make(map[string]string),
	}
	for f := tle.FieldNORADNum; f <= tle.FieldBStar; f++ {
		p.Fields[f.String()] = el.FieldString(f) + el.Units(f, tle.UnitNative)
	}

	o, err := norad.NewOrbit(el)
	if err != nil {
		p.Error = err.Error()
		return p
	}
	p.Model = o.Model().String()
	p.PeriodMinutes = o.Period() / 60
	p.PerigeeKm = o.Perigee()
	p.ApogeeKm = o.Apogee()
	return p
}

func runParse(cmd *cobra.Command, _ []string) error {
	entries, err := selectEntries(newLogger(), true)
	if err != nil {
		return err
	}

	sets := make([]parsedSet, len(entries))
	for i, e := range entries {
		sets[i] = describe(e.Elements)
	}

	out := cmd.OutOrStdout()
	if viper.GetBool("json") {
		return writeJSON(out, sets)
	}

	for i, p := range sets {
		el := entries[i].Elements
		fmt.Fprintf(out, "%s #%d  epoch %s\n", p.Name, p.NORADID, p.Epoch.Format(timeLayout))
		if p.Error != "" {
			fmt.Fprintf(out, "  error: %s\n", p.Error)
		} else {
			fmt.Fprintf(out, "  %s, period %.2f min, perigee %.1f km, apogee %.1f km\n",
				p.Model, p.PeriodMinutes, p.PerigeeKm, p.ApogeeKm)
		}
		if !p.ChecksumOK {
			fmt.Fprintln(out, "  checksum mismatch")
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for f := tle.FieldNORADNum; f <= tle.FieldBStar; f++ {
			fmt.Fprintf(tw, "  %s\t%s%s\n", f, el.FieldString(f), el.Units(f, tle.UnitNative))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

type trackRow struct {
	Time       time.Time  `json:"time"`
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	AltitudeKm float64    `json:"altitude_km"`
	ECI        [3]float64 `json:"eci_km"`
}

func runPropagate(cmd *cobra.Command, _ []string) error {
	e, err := selectEntry(newLogger())
	if err != nil {
		return err
	}
	start, err := timeFlag(cmd, "start", time.Now().UTC().Truncate(time.Second))
	if err != nil {
		return err
	}
	stepSec, _ := cmd.Flags().GetInt("step")
	count, _ := cmd.Flags().GetInt("count")
	if stepSec < 1 || count < 1 {
		return errors.New("--step and --count must be positive")
	}
	step := time.Duration(stepSec) * time.Second

	tr, err := tracker.New(e.Elements, start)
	if err != nil {
		return err
	}

	rows := make([]trackRow, 0, count)
	for i := 0; i < count; i++ {
		off := time.Duration(i) * step
		if err := tr.Update(off); err != nil {
			return err
		}
		p := tr.ECI().Pos
		rows = append(rows, trackRow{
			Time:       start.Add(off),
			Latitude:   tr.Latitude(),
			Longitude:  tr.Longitude(),
			AltitudeKm: tr.Altitude(),
			ECI:        p.Array(),
		})
	}

	out := cmd.OutOrStdout()
	if viper.GetBool("json") {
		return writeJSON(out, rows)
	}

	fmt.Fprintf(out, "%s (%s)\n", tr.Orbit().SatName(true), tr.Orbit().Model())
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "time\tlat\tlon\talt km\tx km\ty km\tz km\t")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.2f\t%.3f\t%.3f\t%.3f\t\n",
			r.Time.Format(timeLayout), r.Latitude, r.Longitude, r.AltitudeKm, r.ECI[0], r.ECI[1], r.ECI[2])
	}
	return tw.Flush()
}

type lookRow struct {
	Time         time.Time `json:"time"`
	Site         string    `json:"site"`
	Azimuth      float64   `json:"azimuth"`
	Elevation    float64   `json:"elevation"`
	RangeKm      float64   `json:"range_km"`
	RangeRateKmS float64   `json:"range_rate_km_s"`
}

func runLook(cmd *cobra.Command, _ []string) error {
	e, err := selectEntry(newLogger())
	if err != nil {
		return err
	}
	at, err := timeFlag(cmd, "time", time.Now().UTC())
	if err != nil {
		return err
	}

	tr, err := tracker.New(e.Elements, at)
	if err != nil {
		return err
	}
	s := configuredSite()
	topo := s.LookAngle(tr.ECI())

	row := lookRow{
		Time:         at,
		Site:         s.String(),
		Azimuth:      topo.AzDeg(),
		Elevation:    topo.ElDeg(),
		RangeKm:      topo.Range,
		RangeRateKmS: topo.RangeRate,
	}

	out := cmd.OutOrStdout()
	if viper.GetBool("json") {
		return writeJSON(out, row)
	}
	fmt.Fprintf(out, "%s from %s at %s\n", tr.Orbit().SatName(true), row.Site, at.Format(timeLayout))
	fmt.Fprintf(out, "  az %.2f  el %.2f  range %.1f km  range rate %.3f km/s\n",
		row.Azimuth, row.Elevation, row.RangeKm, row.RangeRateKmS)
	return nil
}

func runPasses(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	entries, err := selectEntries(logger, true)
	if err != nil {
		return err
	}
	start, err := timeFlag(cmd, "start", time.Now().UTC())
	if err != nil {
		return err
	}
	hours, _ := cmd.Flags().GetFloat64("hours")
	minEl, _ := cmd.Flags().GetFloat64("min-elevation")
	maxPasses, _ := cmd.Flags().GetInt("max-passes")
	if hours <= 0 {
		return errors.New("--hours must be positive")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	results := passes.Predict(ctx, passes.Request{
		Site:         configuredSite(),
		Entries:      entries,
		Start:        start,
		Horizon:      time.Duration(hours * float64(time.Hour)),
		MinElevation: minEl,
		MaxPasses:    maxPasses,
		Logger:       logger,
	})

	out := cmd.OutOrStdout()
	if viper.GetBool("json") {
		return writeJSON(out, results)
	}

	names := make(map[int]string, len(entries))
	for _, e := range entries {
		names[e.NORADID] = e.Name
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, r := range results {
		if len(r.Passes) == 0 && r.Error == "" {
			continue
		}
		fmt.Fprintf(tw, "%s #%d\n", names[r.NORADID], r.NORADID)
		for _, p := range r.Passes {
			fmt.Fprintf(tw, "  %s\t%s\t%.0fs\tmax %.1f° az %.0f°\t%.0f km\t%s\n",
				p.StartTime.Format(timeLayout), p.EndTime.Format("15:04:05"), p.DurationSeconds,
				p.MaxElevation, p.AzimuthAtMax, p.RangeAtMaxKm, lighting(p))
		}
		if r.Error != "" {
			fmt.Fprintf(tw, "  error: %s\n", r.Error)
		}
	}
	return tw.Flush()
}

func lighting(p passes.PassEvent) string {
	switch {
	case p.Visible:
		return "visible"
	case p.Sunlit:
		return "sunlit"
	}
	return "eclipsed"
}

func runVerify(cmd *cobra.Command, _ []string) error {
	e, err := selectEntry(newLogger())
	if err != nil {
		return err
	}
	start, err := timeFlag(cmd, "start", e.Epoch)
	if err != nil {
		return err
	}
	stepMin, _ := cmd.Flags().GetInt("step")
	count, _ := cmd.Flags().GetInt("count")
	tol, _ := cmd.Flags().GetFloat64("tolerance")
	if stepMin < 1 || count < 1 {
		return errors.New("--step and --count must be positive")
	}

	rep, err := verify.Compare(e.Elements, verify.Times(start, time.Duration(stepMin)*time.Minute, count))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if viper.GetBool("json") {
		if err := writeJSON(out, rep); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "%s #%d (%s)\n", rep.Name, rep.NORADID, rep.Model)
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "time\tΔpos km\tΔvel m/s\t")
		for _, s := range rep.Samples {
			fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t\n", s.Time.Format(timeLayout), s.PosDelta, s.VelDelta*1000)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "max Δpos %.4f km, max Δvel %.4f m/s\n", rep.MaxPosDelta, rep.MaxVelDelta*1000)
	}

	if tol > 0 && rep.MaxPosDelta > tol {
		return fmt.Errorf("position delta %.4f km exceeds tolerance %.4f km", rep.MaxPosDelta, tol)
	}
	return nil
}
