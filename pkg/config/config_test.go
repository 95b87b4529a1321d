package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regioncount/regioncount/pkg/regioncount"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	for _, tt := range []struct {
		name     string
		content  string
		expected File
		err      string
	}{
		{
			name:     "empty file keeps defaults",
			content:  "",
			expected: Default(),
		},
		{
			name: "yaml overrides",
			content: `
maxSamples: 500
maxTime: 90s
reportEvery: 50
seed: 7
trackDistinct: true
metricsAddr: ":8081"
profiling: true
`,
			expected: File{
				MaxSamples:    500,
				MaxTime:       Duration(90 * time.Second),
				BoundTimeout:  Duration(regioncount.DefaultBoundTimeout),
				ReportEvery:   50,
				Seed:          7,
				TrackDistinct: true,
				MetricsAddr:   ":8081",
				Profiling:     true,
			},
		},
		{
			name:    "json is accepted",
			content: `{"boundTimeout": "2s", "maxSamples": 3}`,
			expected: File{
				MaxSamples:   3,
				BoundTimeout: Duration(2 * time.Second),
				ReportEvery:  regioncount.DefaultReportEvery,
			},
		},
		{
			name:    "bad duration",
			content: "maxTime: soon\n",
			err:     "decoding config",
		},
		{
			name:    "every invalid field is reported",
			content: "maxSamples: -1\nreportEvery: -2\nprofiling: true\n",
			err:     "max samples must not be negative",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Load(writeConfig(t, tt.content))
			if tt.err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, f)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(errors.Cause(err)))
}

func TestValidateAggregates(t *testing.T) {
	f := Default()
	f.MaxSamples = -1
	f.ReportEvery = -2
	f.Profiling = true
	err := f.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max samples")
	assert.Contains(t, err.Error(), "report period")
	assert.Contains(t, err.Error(), "profiling requires a metrics address")
}

func TestCounting(t *testing.T) {
	f := Default()
	f.Seed = 11
	f.MaxTime = Duration(time.Minute)
	assert.Equal(t, regioncount.Config{
		MaxSamples:   DefaultMaxSamples,
		MaxTime:      time.Minute,
		BoundTimeout: regioncount.DefaultBoundTimeout,
		ReportEvery:  regioncount.DefaultReportEvery,
		Seed:         11,
	}, f.Counting())
}
