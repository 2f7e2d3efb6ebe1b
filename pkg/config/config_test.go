package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pydio/gosync/pkg/types"
)

const minimal = `
jobs:
  docs:
    directory: /home/user/Documents
    server: https://pydio.example.com
    workspace: my-files
`

func TestParseMinimalAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	require.NoError(t, err)

	require.Contains(t, cfg.Jobs, "docs")
	job := cfg.Jobs["docs"]

	assert.Equal(t, 10*time.Second, job.Frequency.Every)
	assert.Nil(t, job.Frequency.At)
	assert.Equal(t, types.DirectionBi, job.ParsedDirection())
	assert.Equal(t, types.SolveBoth, job.ParsedSolve())
	assert.Equal(t, 20, job.Timeout)
	assert.True(t, job.IsActive())
	assert.False(t, job.TrustSSL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestParseFullJob(t *testing.T) {
	cfg, err := Parse([]byte(`
data_dir: /var/lib/gosync
metrics_addr: ":9611"
jobs:
  photos:
    directory: /data/photos
    server: https://pydio.example.com
    workspace: photos
    remote_folder: backup
    user_id: alice
    frequency: 30
    direction: up
    solve: local
    includes: ["*.jpg", "*.png"]
    excludes: ["*.tmp"]
    trust_ssl: true
    timeout: 5
    active: false
`))
	require.NoError(t, err)

	job := cfg.Jobs["photos"]
	assert.Equal(t, 30*time.Second, job.Frequency.Every)
	assert.Equal(t, types.DirectionUp, job.ParsedDirection())
	assert.Equal(t, types.SolveLocal, job.ParsedSolve())
	assert.Equal(t, 5*time.Second, job.RequestTimeout())
	assert.False(t, job.IsActive())
	assert.True(t, job.TrustSSL)
	assert.Equal(t, "/var/lib/gosync", cfg.DataDir)
	assert.Equal(t, ":9611", cfg.MetricsAddr)
}

func TestParseClockFrequency(t *testing.T) {
	cfg, err := Parse([]byte(`
jobs:
  nightly:
    directory: /data
    server: https://pydio.example.com
    workspace: ws
    frequency: "02:30"
`))
	require.NoError(t, err)

	job := cfg.Jobs["nightly"]
	require.NotNil(t, job.Frequency.At)
	assert.Equal(t, 2, job.Frequency.At.Hour)
	assert.Equal(t, 30, job.Frequency.At.Minute)
	assert.Zero(t, job.Frequency.Every)
}

func TestParseFractionalFrequency(t *testing.T) {
	cfg, err := Parse([]byte(`
jobs:
  fast:
    directory: /data
    server: https://pydio.example.com
    workspace: ws
    frequency: 2.5
`))
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, cfg.Jobs["fast"].Frequency.Every)
}

func TestParseRejectsBadFrequency(t *testing.T) {
	for _, bad := range []string{`"25:99"`, `"soon"`, `-5`, `0`} {
		_, err := Parse([]byte(`
jobs:
  j:
    directory: /data
    server: https://x
    workspace: ws
    frequency: ` + bad))
		assert.Error(t, err, "frequency %s should be rejected", bad)
	}
}

func TestParseRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing directory", `
jobs:
  j:
    server: https://x
    workspace: ws`},
		{"missing server", `
jobs:
  j:
    directory: /data
    workspace: ws`},
		{"missing workspace", `
jobs:
  j:
    directory: /data
    server: https://x`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseRejectsBadEnums(t *testing.T) {
	_, err := Parse([]byte(`
jobs:
  j:
    directory: /data
    server: https://x
    workspace: ws
    direction: sideways
`))
	assert.Error(t, err)

	_, err = Parse([]byte(`
jobs:
  j:
    directory: /data
    server: https://x
    workspace: ws
    solve: coinflip
`))
	assert.Error(t, err)
}

func TestParseRejectsBadGlobs(t *testing.T) {
	_, err := Parse([]byte(`
jobs:
  j:
    directory: /data
    server: https://x
    workspace: ws
    includes: ["[unclosed"]
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrFilterConfig)
}

func TestParseRejectsEmptyJobs(t *testing.T) {
	_, err := Parse([]byte(`jobs: {}`))
	assert.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Contains(t, cfg.Jobs, "docs")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}
