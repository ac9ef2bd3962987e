// Package config loads the Argus JSON configuration file.
//
// The field set and defaults mirror argus_components/common/config.py
// from the original analyzer: a fixed handful of scalar settings with
// sane defaults, loaded by overwriting a struct rather than by any
// generic config framework. encoding/json is sufficient for five flat
// fields with no nesting or env-var overlay, so no third-party config
// library is wired here (see DESIGN.md).
package config

import (
	"encoding/json"
	"os"
)

// Config holds the tunables that would otherwise live in the original
// tool's module-level globals.
type Config struct {
	LocalFolder              string `json:"local_folder"`
	CodeQLBin                string `json:"codeql_bin"`
	QueryPath                string `json:"query_path"`
	EnableLowPriorityReports bool   `json:"enable_low_priority_reports"`
	ResultsFolder            string `json:"results_folder"`
}

// Default returns the configuration used when no --config file is given,
// matching the original's module defaults.
func Default() *Config {
	return &Config{
		LocalFolder:              "/tmp",
		CodeQLBin:                "~/codeql_home/codeql/codeql",
		QueryPath:                "./qlqueries",
		EnableLowPriorityReports: true,
		ResultsFolder:            "/results",
	}
}

// Load reads a JSON config file and overlays it onto the defaults. Any
// field absent from the file keeps its default value.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
