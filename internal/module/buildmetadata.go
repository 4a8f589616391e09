package module

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/grove-run/grove/internal/model"
)

const buildVersionFileName = "grove-build-version"

// buildMetadataPath returns <cacheRoot>/build-metadata/<module>/grove-build-version.
func buildMetadataPath(cacheRoot, moduleName string) string {
	return filepath.Join(cacheRoot, "build-metadata", moduleName, buildVersionFileName)
}

// readBuildVersion loads a module's previously persisted ModuleVersion.
// Any decode error, including the file not existing or carrying a stale
// format, is treated as a cache-miss rather than fatal; the caller logs
// it at debug level.
func readBuildVersion(path string) (model.ModuleVersion, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.ModuleVersion{}, false
	}
	var v model.ModuleVersion
	if err := json.Unmarshal(data, &v); err != nil {
		return model.ModuleVersion{}, false
	}
	return v, true
}

// writeBuildVersion persists v atomically: write-temp then os.Rename,
// the same pattern internal/store uses for the config store file.
func writeBuildVersion(path string, v model.ModuleVersion) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
