// Command norad parses element sets and propagates, points at and
// cross-checks satellites from the command line.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/star/norad/internal/site"
	"github.com/star/norad/internal/tle"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "norad",
	Short: "SGP4/SDP4 satellite propagation",
	Long: `Propagate satellites from two-line element sets.

Settings are read from flags, NORAD_* environment variables and norad.yaml
in the working directory or $HOME/.config/norad, in that order of precedence.

Examples:
  norad parse --tle stations.txt
  norad propagate --tle stations.txt --sat ISS --step 60 --count 10
  norad passes --tle stations.txt --sat ISS --lat 47.37 --lon 8.54`,
	SilenceUsage:      true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return initConfig() },
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default norad.yaml)")
	pf.String("tle", "", "file of 3-line element sets")
	pf.String("sat", "", "select the first satellite whose name contains this text")
	pf.Int("index", -1, "select the element set at this position of the file")
	pf.Float64("lat", 0, "site latitude in degrees, negative south")
	pf.Float64("lon", 0, "site longitude in degrees, negative west")
	pf.Float64("alt", 0, "site altitude in km")
	pf.Bool("refraction", false, "correct elevations for atmospheric refraction")
	pf.Bool("json", false, "write JSON instead of text")
	pf.String("log-level", "warn", "debug, info, warn or error")

	bind(pf, "tle", "tle")
	bind(pf, "sat", "sat")
	bind(pf, "index", "index")
	bind(pf, "lat", "site.lat")
	bind(pf, "lon", "site.lon")
	bind(pf, "alt", "site.alt")
	bind(pf, "refraction", "site.refraction")
	bind(pf, "json", "json")
	bind(pf, "log-level", "log_level")

	rootCmd.AddCommand(parseCmd, propagateCmd, lookCmd, passesCmd, verifyCmd)
}

func bind(fs *pflag.FlagSet, flag, key string) {
	if err := viper.BindPFlag(key, fs.Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("norad")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "norad"))
		}
	}

	viper.SetEnvPrefix("NORAD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}
	return nil
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log_level"))); err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadEntries reads the configured TLE file.
func loadEntries(logger *slog.Logger) ([]tle.TLEEntry, error) {
	path := viper.GetString("tle")
	if path == "" {
		return nil, errors.New("no TLE file, set --tle or NORAD_TLE")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := tle.Parse(f, logger)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s: no valid element sets", path)
	}
	return entries, nil
}

// selectEntries narrows the file to the satellite chosen by --index or
// --sat. With neither set, all entries are returned when all is true and
// a single-entry file is required otherwise.
func selectEntries(logger *slog.Logger, all bool) ([]tle.TLEEntry, error) {
	if idx := viper.GetInt("index"); idx >= 0 {
		f, err := os.Open(viper.GetString("tle"))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		e, err := tle.FindByIndex(f, idx)
		if err != nil {
			return nil, err
		}
		return []tle.TLEEntry{e}, nil
	}

	entries, err := loadEntries(logger)
	if err != nil {
		return nil, err
	}
	if name := viper.GetString("sat"); name != "" {
		e, err := tle.FindByName(entries, name)
		if err != nil {
			return nil, err
		}
		return []tle.TLEEntry{e}, nil
	}
	if all || len(entries) == 1 {
		return entries, nil
	}
	return nil, fmt.Errorf("%d satellites in file, select one with --sat or --index", len(entries))
}

func selectEntry(logger *slog.Logger) (tle.TLEEntry, error) {
	entries, err := selectEntries(logger, false)
	if err != nil {
		return tle.TLEEntry{}, err
	}
	return entries[0], nil
}

func configuredSite() site.Site {
	var opts []site.Option
	if viper.GetBool("site.refraction") {
		opts = append(opts, site.WithRefraction())
	}
	return site.New(viper.GetFloat64("site.lat"), viper.GetFloat64("site.lon"), viper.GetFloat64("site.alt"), opts...)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
