package state

import (
	"os"
	"path/filepath"
)

type Paths struct {
	DB          string
	Store       string
	State       string
	Tmp         string
	Tel         string
	Logs        string
	Crash       string
	SideEffects string // activity writes that failed after their trigger committed
}

func PathsFor(dbPath string) Paths {
	statePath := filepath.Join(dbPath, "state")
	return Paths{
		DB: dbPath,

		Store: filepath.Join(dbPath, "store"),

		State:       statePath,
		Tmp:         filepath.Join(statePath, "tmp"),
		Tel:         filepath.Join(statePath, "telemetry"),
		Logs:        filepath.Join(statePath, "logs"),
		Crash:       filepath.Join(statePath, "crash"),
		SideEffects: filepath.Join(statePath, "side_effects"),
	}
}

// StorePath resolves the pebble directory for path. A server data directory
// (the --db value) holds it under store/; any other path is taken as the
// pebble directory itself.
func StorePath(path string) string {
	store := PathsFor(path).Store
	if fi, err := os.Stat(store); err == nil && fi.IsDir() {
		return store
	}
	return path
}
