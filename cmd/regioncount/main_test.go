package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regioncount/regioncount/pkg/config"
)

const sum = `
(set-logic QF_BV)
(declare-const x (_ BitVec 4))
(declare-const y (_ BitVec 4))
(assert (= (bvadd ((_ zero_extend 1) x) ((_ zero_extend 1) y)) (_ bv3 5)))
(check-sat)
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCountCommand(t *testing.T) {
	path := writeFile(t, "sum.smt2", sum)
	out, err := execute(t, "count", "--max-samples", "200", "--report-every", "100", "--seed", "5", path)
	require.NoError(t, err)

	assert.Contains(t, out, "final statistics (STOPPED_BY_COUNT):")
	assert.Contains(t, out, "samples number: 200\n")
	assert.Contains(t, out, "variables: 2 (0 fixed)\n")
	assert.Contains(t, out, "region volume: 2^4.00\n")
	assert.Contains(t, out, "estimated models: ")
}

func TestCountCommandMissingFile(t *testing.T) {
	_, err := execute(t, "count", filepath.Join(t.TempDir(), "absent.smt2"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input file")
}

func TestCountCommandSyntaxError(t *testing.T) {
	path := writeFile(t, "bad.smt2", "(assert (bvadd x")
	_, err := execute(t, "count", path)
	require.Error(t, err)
}

func TestVarsCommand(t *testing.T) {
	path := writeFile(t, "sum.smt2", sum)
	out, err := execute(t, "vars", path)
	require.NoError(t, err)
	assert.Equal(t, "x (_ BitVec 4)\ny (_ BitVec 4)\n", out)

	other := writeFile(t, "other.smt2", "(declare-const y (_ BitVec 4))\n(assert (= y #x1))\n")
	out, err = execute(t, "vars", "--exclude", other, path)
	require.NoError(t, err)
	assert.Equal(t, "x (_ BitVec 4)\n", out)
}

func TestIntervalCommand(t *testing.T) {
	path := writeFile(t, "sum.smt2", sum)
	for _, tt := range []struct {
		query    string
		expected string
	}{
		{query: "x", expected: "[0, 3]\n"},
		{query: "(bvadd x y)", expected: "[3, 3]\n"},
		{query: "(bvor x #x8)", expected: "[8, 11]\n"},
	} {
		t.Run(tt.query, func(t *testing.T) {
			out, err := execute(t, "interval", "--query", tt.query, path)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}

	_, err := execute(t, "interval", "--query", "(bvadd x z)", path)
	require.Error(t, err)
}

func TestResolveConfig(t *testing.T) {
	file := writeFile(t, "config.yaml", "maxSamples: 10\nmaxTime: 1m\nseed: 3\n")

	for _, tt := range []struct {
		name     string
		args     []string
		expected func(f *config.File)
		err      string
	}{
		{
			name:     "defaults",
			expected: func(f *config.File) {},
		},
		{
			name: "flags only",
			args: []string{"--max-samples", "7", "--max-time", "3s"},
			expected: func(f *config.File) {
				f.MaxSamples = 7
				f.MaxTime = config.Duration(3 * time.Second)
			},
		},
		{
			name: "flags override the file",
			args: []string{"--config", file, "--seed", "9", "--bound-timeout", "2s"},
			expected: func(f *config.File) {
				f.MaxSamples = 10
				f.MaxTime = config.Duration(time.Minute)
				f.BoundTimeout = config.Duration(2 * time.Second)
				f.Seed = 9
			},
		},
		{
			name: "invalid flags",
			args: []string{"--max-samples", "-1"},
			err:  "max samples must not be negative",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			o := &countOptions{rootOptions: &rootOptions{}, flags: config.Default()}
			fs := pflag.NewFlagSet("count", pflag.ContinueOnError)
			o.bindFlags(fs)
			require.NoError(t, fs.Parse(tt.args))

			cfg, err := o.resolve(fs)
			if tt.err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.err)
				return
			}
			require.NoError(t, err)
			expected := config.Default()
			tt.expected(&expected)
			assert.Equal(t, expected, cfg)
		})
	}
}
