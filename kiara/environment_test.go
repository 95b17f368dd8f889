package kiara

import (
	"testing"

	"github.com/DHARPA-Project/kiara-sub003/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvironmentParsesRecognizedOptions(t *testing.T) {
	t.Parallel()
	data := []byte(`
job_cache: data_hash
allow_external: true
lock_context: true
runtime_profile: strict
extra_pipeline_folders:
  - /blueprints/a
  - /blueprints/b
`)
	env, err := LoadEnvironment(data)
	require.NoError(t, err)
	assert.Equal(t, job.CacheByDataHash, env.JobCache)
	assert.True(t, env.AllowExternal)
	assert.True(t, env.LockContext)
	assert.Equal(t, ProfileStrict, env.RuntimeProfile)
	assert.Equal(t, []string{"/blueprints/a", "/blueprints/b"}, env.ExtraPipelineFolders)
}

func TestLoadEnvironmentRejectsUnknownKey(t *testing.T) {
	t.Parallel()
	_, err := LoadEnvironment([]byte("bogus_option: true\n"))
	require.Error(t, err)
}

func TestLoadEnvironmentDefaultsRuntimeProfile(t *testing.T) {
	t.Parallel()
	env, err := LoadEnvironment([]byte("allow_external: false\n"))
	require.NoError(t, err)
	assert.Equal(t, ProfileDefault, env.RuntimeProfile)
}
