package kiara

import (
	"bytes"
	"fmt"
	"os"

	"github.com/DHARPA-Project/kiara-sub003/job"
	"gopkg.in/yaml.v3"
)

// RuntimeProfile selects job-submission strictness (spec §6).
type RuntimeProfile string

const (
	// ProfileDefault imposes no extra submission requirements.
	ProfileDefault RuntimeProfile = "default"
	// ProfileStrict requires a provenance comment on every job submission.
	ProfileStrict RuntimeProfile = "strict"
)

// Environment is the recognized set of context-wide configuration
// options (spec §6), loaded from YAML the way config.WorkflowConfig is
// loaded (_examples/GoCodeAlone-workflow/config).
type Environment struct {
	JobCache             job.CacheStrategy `yaml:"job_cache"`
	AllowExternal        bool              `yaml:"allow_external"`
	LockContext          bool              `yaml:"lock_context"`
	RuntimeProfile       RuntimeProfile    `yaml:"runtime_profile"`
	ExtraPipelineFolders []string          `yaml:"extra_pipeline_folders"`
}

// DefaultEnvironment returns the zero-configuration defaults: no
// caching, no external blueprint references, no cross-process lock, and
// the default (non-strict) runtime profile.
func DefaultEnvironment() Environment {
	return Environment{
		JobCache:       job.CacheNone,
		RuntimeProfile: ProfileDefault,
	}
}

// LoadEnvironment reads and strictly decodes an Environment from YAML
// bytes. Unknown keys are rejected, matching spec §6's "strict schema"
// requirement for blueprints and extended here to environment config.
func LoadEnvironment(data []byte) (Environment, error) {
	env := DefaultEnvironment()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&env); err != nil {
		return Environment{}, fmt.Errorf("kiara: decode environment: %w", err)
	}
	if env.RuntimeProfile == "" {
		env.RuntimeProfile = ProfileDefault
	}
	return env, nil
}

// LoadEnvironmentFile reads path and decodes it as an Environment.
func LoadEnvironmentFile(path string) (Environment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Environment{}, fmt.Errorf("kiara: read environment file %s: %w", path, err)
	}
	return LoadEnvironment(data)
}
