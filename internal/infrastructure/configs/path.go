package configs

import (
	"flag"
	"os"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/env"
)

var candidatePaths = []string{
	"./config.yaml",
	"./config.yml",
	"./tmp/config.yaml",
	"../../config.yaml", // keep for local dev
	"/etc/sync-sketch/config.yaml",
	"/app/config.yaml", // common in Docker
}

// DetermineConfigPath returns an empty string when no file exists. Defaults and
// environment overrides are enough to run.
func DetermineConfigPath() string {
	var configPath string

	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	if configPath == "" {
		configPath = env.GetString("SKETCH_CONFIG", "")
	}

	if configPath == "" {
		configPath = firstExisting(candidatePaths)
	}

	return configPath
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
