package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoConfigFile(t *testing.T) {
	rt, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "aiwarssoc/sandbox", rt.SubmissionRunner.Image)
	assert.Equal(t, "256M", rt.SubmissionRunner.MemoryLimit)
	assert.Equal(t, 1.0, rt.SubmissionRunner.CPUCount)
	assert.Equal(t, 1, rt.SubmissionRunner.Matchmakers)
	assert.Equal(t, 0, rt.SubmissionRunner.UntestedMatchmakers)
	assert.Equal(t, "chess", rt.Gamemode.ID)
	assert.Equal(t, 1000.0, rt.Rating.InitialScore)
}

func TestLoadOverridesDefaultsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
submission_runner:
  image: custom/sandbox
  matchmakers: 4
gamemode:
  id: chess
  options:
    turn_time: 20
rating:
  initial_score: 1200
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	rt, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "custom/sandbox", rt.SubmissionRunner.Image)
	assert.Equal(t, 4, rt.SubmissionRunner.Matchmakers)
	assert.Equal(t, 1200.0, rt.Rating.InitialScore)
	assert.EqualValues(t, 20, rt.Gamemode.Options["turn_time"])
}

func TestMemoryBytesParsesUnitSuffixes(t *testing.T) {
	cases := map[string]int64{
		"256M": 256 << 20,
		"1G":   1 << 30,
		"512K": 512 << 10,
		"100":  100,
	}
	for input, want := range cases {
		got, err := parseMemoryLimit(input)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestMemoryBytesRejectsEmpty(t *testing.T) {
	_, err := parseMemoryLimit("")
	assert.Error(t, err)
}

func TestSandboxConfigTimeouts(t *testing.T) {
	sc := SandboxConfig{UnrunTimeoutSeconds: 30, RunTimeoutSeconds: 60}
	assert.Equal(t, int64(30), int64(sc.UnrunTimeout().Seconds()))
	assert.Equal(t, int64(60), int64(sc.RunTimeout().Seconds()))
}
