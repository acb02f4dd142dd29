// Copyright © 2026 The HYMET Authors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hymet-project/hymet/internal/resolver"
)

// FromCommand builds a Config from a run subcommand's flags, layered over
// the environment variables named in spec.md section 6 and an optional
// --config file (read via viper). Explicitly set flags take precedence over
// the environment variables, the environment variables over the config
// file, and the config file over Default().
func FromCommand(cmd *cobra.Command) (Config, error) {
	cfg := Default()

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v := viper.New()
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
		applyViperDefaults(&cfg, v)
	}

	applyEnv(&cfg)

	cfg.ContigsPath, _ = cmd.Flags().GetString("contigs")
	cfg.ReadsPath, _ = cmd.Flags().GetString("reads")
	cfg.OutDir, _ = cmd.Flags().GetString("out")
	cfg.TaxonomyDir, _ = cmd.Flags().GetString("taxonomy-dir")
	cfg.AssemblySummaryDir, _ = cmd.Flags().GetString("assembly-summary-dir")
	cfg.SketchDBPath, _ = cmd.Flags().GetString("sketch-db")

	if threads, _ := cmd.Flags().GetInt("threads"); threads > 0 {
		cfg.Threads = threads
	}
	if cmd.Flags().Changed("cand-max") {
		cfg.CandMax, _ = cmd.Flags().GetInt("cand-max")
	}
	if cmd.Flags().Changed("species-dedup") {
		cfg.SpeciesDedup, _ = cmd.Flags().GetBool("species-dedup")
	}
	if cmd.Flags().Changed("cache-root") {
		cfg.CacheRoot, _ = cmd.Flags().GetString("cache-root")
	}
	if cmd.Flags().Changed("keep-work") {
		cfg.KeepWork, _ = cmd.Flags().GetBool("keep-work")
	}
	if cmd.Flags().Changed("allow-empty") {
		cfg.AllowEmpty, _ = cmd.Flags().GetBool("allow-empty")
	}
	if cmd.Flags().Changed("force-download") {
		cfg.ForceDownload, _ = cmd.Flags().GetBool("force-download")
	}
	if cmd.Flags().Changed("mode") {
		mode, _ := cmd.Flags().GetString("mode")
		if mode == "reads" {
			cfg.Mode = resolver.ModeReads
		} else {
			cfg.Mode = resolver.ModeContigs
		}
	}

	return cfg, nil
}

// applyEnv layers the three environment variables spec.md section 6 names
// over the config-file values. FromCommand calls it before reading flags, so
// an operator can override a checked-in config file without editing it
// while an explicitly set flag still wins.
func applyEnv(cfg *Config) {
	if v := os.Getenv("CACHE_ROOT"); v != "" {
		cfg.CacheRoot = v
	}
	if v := os.Getenv("FORCE_DOWNLOAD"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ForceDownload = b
		}
	}
	if v := os.Getenv("KEEP_HYMET_WORK"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.KeepWork = b
		}
	}
}

func applyViperDefaults(cfg *Config, v *viper.Viper) {
	if v.IsSet("cache_root") {
		cfg.CacheRoot = v.GetString("cache_root")
	}
	if v.IsSet("cand_max") {
		cfg.CandMax = v.GetInt("cand_max")
	}
	if v.IsSet("species_dedup") {
		cfg.SpeciesDedup = v.GetBool("species_dedup")
	}
	if v.IsSet("min_support_weight") {
		cfg.MinSupportWeight = v.GetFloat64("min_support_weight")
	}
	if v.IsSet("confidence_floor") {
		cfg.ConfidenceFloor = v.GetFloat64("confidence_floor")
	}
	if v.IsSet("tie_epsilon") {
		cfg.TieEpsilon = v.GetFloat64("tie_epsilon")
	}
	if v.IsSet("rel_cov_threshold") {
		cfg.RelCovThreshold = v.GetFloat64("rel_cov_threshold")
	}
	if v.IsSet("abs_cov_threshold") {
		cfg.AbsCovThreshold = v.GetFloat64("abs_cov_threshold")
	}
}

// DefaultHymetConfigPath returns the conventional per-user config file
// location, $XDG-style under the user's home directory; config.go's
// defaultCacheRoot follows the same stdlib-only convention rather than
// reaching for a home-directory-locating dependency.
func DefaultHymetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "hymet", "config.yaml")
}
