package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/star/norad/internal/verify"
)

const testTLE = `ISS (ZARYA)
1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9993
2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495058
GEO TEST
1 28626U 05008A   24100.50000000 -.00000205  00000-0  10000-3 0  2190
2 28626   0.0019 286.9433 0000335  13.7918  55.6504  1.00270176  4891
`

func writeTLE(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sats.txt")
	if err := os.WriteFile(path, []byte(testTLE), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestParseJSON(t *testing.T) {
	path := writeTLE(t)
	out, err := run(t, "parse", "--tle", path, "--json")
	if err != nil {
		t.Fatalf("parse: %v\n%s", err, out)
	}

	var sets []parsedSet
	if err := json.Unmarshal([]byte(out), &sets); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sets) != 2 {
		t.Fatalf("got %d sets, want 2", len(sets))
	}

	iss, geo := sets[0], sets[1]
	if iss.NORADID != 25544 || iss.Model != "sgp4" {
		t.Errorf("ISS = %d/%s, want 25544/sgp4", iss.NORADID, iss.Model)
	}
	if got := iss.Fields["inclination"]; got != "51.6412 degrees" {
		t.Errorf("inclination = %q, want %q", got, "51.6412 degrees")
	}
	if iss.PeriodMinutes < 92 || iss.PeriodMinutes > 93.5 {
		t.Errorf("ISS period = %.2f min", iss.PeriodMinutes)
	}
	if geo.Model != "sdp4" {
		t.Errorf("GEO model = %s, want sdp4", geo.Model)
	}
}

func TestParseSelectByName(t *testing.T) {
	path := writeTLE(t)
	out, err := run(t, "parse", "--tle", path, "--sat", "geo")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !strings.HasPrefix(out, "GEO TEST #28626") {
		t.Errorf("output starts %q", strings.SplitN(out, "\n", 2)[0])
	}
	if strings.Contains(out, "ISS") {
		t.Error("unselected satellite printed")
	}
}

func TestPropagateRequiresSelection(t *testing.T) {
	path := writeTLE(t)
	_, err := run(t, "propagate", "--tle", path)
	if err == nil || !strings.Contains(err.Error(), "select one") {
		t.Fatalf("err = %v, want selection error", err)
	}
}

func TestPropagateByIndex(t *testing.T) {
	path := writeTLE(t)
	out, err := run(t, "propagate", "--tle", path, "--index", "0",
		"--start", "2025-02-14T05:00:00Z", "--step", "60", "--count", "3", "--json")
	if err != nil {
		t.Fatalf("propagate: %v\n%s", err, out)
	}

	var rows []trackRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	want := time.Date(2025, 2, 14, 5, 2, 0, 0, time.UTC)
	if !rows[2].Time.Equal(want) {
		t.Errorf("last time = %s, want %s", rows[2].Time, want)
	}
	for _, r := range rows {
		if r.AltitudeKm < 350 || r.AltitudeKm > 500 {
			t.Errorf("altitude %.1f km at %s", r.AltitudeKm, r.Time)
		}
	}
}

func TestLookText(t *testing.T) {
	path := writeTLE(t)
	out, err := run(t, "look", "--tle", path, "--sat", "ISS",
		"--lat", "47.37", "--lon", "8.54", "--alt", "0.4", "--time", "2025-02-14T05:00:00Z")
	if err != nil {
		t.Fatalf("look: %v", err)
	}
	if !strings.Contains(out, "47.370N, 008.540E, 400.0m") {
		t.Errorf("site missing from output:\n%s", out)
	}
	if !strings.Contains(out, "range rate") {
		t.Errorf("look angles missing from output:\n%s", out)
	}
}

func TestPassesAllSatellites(t *testing.T) {
	path := writeTLE(t)
	out, err := run(t, "passes", "--tle", path, "--lat", "40.7", "--lon", "-74",
		"--start", "2025-02-14T05:00:00Z", "--hours", "24", "--json")
	if err != nil {
		t.Fatalf("passes: %v", err)
	}

	var results []struct {
		NORADID int               `json:"norad_id"`
		Passes  []json.RawMessage `json:"passes"`
	}
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.NORADID == 25544 && len(r.Passes) == 0 {
			t.Error("no ISS passes over New York in 24h")
		}
	}
}

func TestVerifyTolerance(t *testing.T) {
	path := writeTLE(t)
	out, err := run(t, "verify", "--tle", path, "--sat", "ISS", "--step", "10", "--count", "4", "--json")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	var rep verify.Report
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rep.Samples) != 4 {
		t.Errorf("got %d samples, want 4", len(rep.Samples))
	}

	_, err = run(t, "verify", "--tle", path, "--sat", "ISS", "--count", "2", "--tolerance", "1e-12")
	if err == nil || !strings.Contains(err.Error(), "exceeds tolerance") {
		t.Errorf("err = %v, want tolerance failure", err)
	}
}
