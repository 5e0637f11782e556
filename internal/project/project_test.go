package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schollz/collidertracker/internal/dsp"
)

func TestDefaultsMatchRenderDefaults(t *testing.T) {
	p := Defaults()
	assert.Equal(t, 44100, p.Audio.SampleRate)
	assert.Equal(t, 2, p.Audio.Channels)
	assert.Equal(t, 16, p.Audio.BitDepth)
	assert.Equal(t, "index.deva", p.Paths.Entry)
}

func TestLoadJSONOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devalang.json")
	content := `{
		"project": {"name": "demo"},
		"audio": {"sample_rate": 48000, "bit_depth": 24, "resample_quality": "sinc32"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", p.Project.Name)
	assert.Equal(t, 48000, p.Audio.SampleRate)
	assert.Equal(t, 24, p.Audio.BitDepth)
	assert.Equal(t, dsp.Sinc32, p.ResampleQuality())
	// unset keys keep their defaults.
	assert.Equal(t, 2, p.Audio.Channels)
}

func TestLoadTOMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devalang.toml")
	content := "[project]\nname = \"demo\"\n\n[audio]\nchannels = 1\nbpm = 140.0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", p.Project.Name)
	assert.Equal(t, 1, p.Audio.Channels)
	assert.InDelta(t, 140.0, p.Audio.Bpm, 1e-9)
}

func TestLoadUnrecognizedExtensionErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devalang.yaml")
	require.NoError(t, os.WriteFile(path, []byte("project: {}"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestHasFormatCaseInsensitive(t *testing.T) {
	p := Defaults()
	p.Audio.Format = []string{"WAV", "mid"}
	assert.True(t, p.HasFormat("wav"))
	assert.True(t, p.HasFormat("MID"))
	assert.False(t, p.HasFormat("mp3"))
}
