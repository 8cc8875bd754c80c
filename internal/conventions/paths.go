package conventions

import (
	"path/filepath"

	"k8s.io/client-go/util/homedir"
)

const (
	// DefaultDataDir is the tuberip data directory name (relative to home).
	DefaultDataDir = ".tuberip"
	// DBFile is the filename of the settings and history database.
	DBFile = "tuberip.db"
	// ConfigFile is the config file name, without extension, searched by the config loader.
	ConfigFile = "config"
	// EnvPrefix is the prefix of the environment variables.
	EnvPrefix = "TUBERIP"

	// DefaultEndpoint is the backend address used when nothing else is configured.
	DefaultEndpoint = "http://localhost:5000"
	// DefaultDownloadsDir is where the retrieved files are stored by default.
	DefaultDownloadsDir = "downloads"
	// DefaultServeAddr is the default listen address of the display API.
	DefaultServeAddr = "127.0.0.1:8090"
)

// DataDir returns the data directory of the user.
func DataDir() string {
	return filepath.Join(homedir.HomeDir(), DefaultDataDir)
}

// DBPath returns the database path inside a data directory.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, DBFile)
}
