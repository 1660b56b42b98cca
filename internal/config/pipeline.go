package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"sluice/internal/spec"
)

// SupportedSchema is the only pipeline schema_version this build accepts.
const SupportedSchema = "v1"

// LoadPipelineSpec reads and validates a pipeline file. The second return is
// the source driver's config file resolved against the pipeline's directory,
// or "" when the driver configures inline.
func LoadPipelineSpec(path string) (spec.File, string, error) {
	var f spec.File
	raw, err := os.ReadFile(path)
	if err != nil {
		return f, "", err
	}
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return f, "", fmt.Errorf("parse %s: %w", path, err)
	}
	switch f.SchemaVersion {
	case "":
		f.SchemaVersion = SupportedSchema
	case SupportedSchema:
	default:
		return f, "", fmt.Errorf("pipeline schema_version %q not supported (want %q)", f.SchemaVersion, SupportedSchema)
	}
	return f, resolveSourceConfig(path, f.Source.Config), nil
}

func resolveSourceConfig(pipelinePath, confPath string) string {
	if confPath == "" || filepath.IsAbs(confPath) {
		return confPath
	}
	return filepath.Join(filepath.Dir(pipelinePath), confPath)
}
