package pipeline

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schollz/collidertracker/internal/project"
	"github.com/schollz/collidertracker/internal/resolve"
)

// memSource resolves in-memory file contents keyed by absolute path, so
// tests never touch the real filesystem (matches internal/resolve's own
// test helper).
type memSource struct {
	files map[string]string
}

func (m memSource) ReadFile(path string) ([]byte, error) {
	abs, _ := filepath.Abs(path)
	if data, ok := m.files[abs]; ok {
		return []byte(data), nil
	}
	return nil, fmt.Errorf("no such file: %s", path)
}

func absKey(rel string) string {
	abs, _ := filepath.Abs(rel)
	return abs
}

func withMemSource(t *testing.T, entryPath, entrySrc string) func() {
	t.Helper()
	orig := resolveFn
	src := memSource{files: map[string]string{absKey(entryPath): entrySrc}}
	resolveFn = func(path string) (*resolve.Graph, error) {
		return resolve.Resolve(path, src)
	}
	return func() { resolveFn = orig }
}

func TestCompileSchedulesASimpleScript(t *testing.T) {
	entry := "entry.deva"
	restore := withMemSource(t, entry, "bpm 120\nlet lead = synth sine\nlead -> note(A4)\n")
	defer restore()

	proj := project.Defaults()
	cr, err := Compile(entry, proj, 1)
	require.NoError(t, err)
	require.False(t, cr.Fatal())
	assert.NotEmpty(t, cr.Events)
	assert.NotEmpty(t, cr.Scheduler.TempoChanges())
}

func TestCompileReportsFatalResolutionErrors(t *testing.T) {
	entry := "entry.deva"
	restore := withMemSource(t, entry, `@import { missing } from "./nope.deva"`+"\n")
	defer restore()

	proj := project.Defaults()
	cr, err := Compile(entry, proj, 1)
	require.NoError(t, err)
	assert.True(t, cr.Fatal())
	assert.Nil(t, cr.Events)
}

func TestRenderProducesAudibleSignalFromAScript(t *testing.T) {
	entry := "entry.deva"
	restore := withMemSource(t, entry, "bpm 120\nlet lead = synth sine\nlead -> note(A4, {duration: 200})\n")
	defer restore()

	proj := project.Defaults()
	rr, err := Render(entry, proj, 1, 2.0)
	require.NoError(t, err)
	require.NotEmpty(t, rr.PCM)

	var peak float32
	for _, v := range rr.PCM {
		if v > peak {
			peak = v
		}
		if -v > peak {
			peak = -v
		}
	}
	assert.Greater(t, peak, float32(0))
}

func TestWriteOutputsWritesConfiguredFormats(t *testing.T) {
	dir := t.TempDir()
	proj := project.Defaults()
	proj.Paths.Output = dir
	proj.Audio.Format = []string{"wav", "mid"}

	pcm := []float32{0, 0.5, -0.5, 0}
	err := WriteOutputs(proj, "song", pcm, nil, nil)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "song.wav"))
	assert.FileExists(t, filepath.Join(dir, "song.mid"))
}

func TestWriteOutputsRejectsMp3(t *testing.T) {
	dir := t.TempDir()
	proj := project.Defaults()
	proj.Paths.Output = dir
	proj.Audio.Format = []string{"mp3"}

	err := WriteOutputs(proj, "song", []float32{0}, nil, nil)
	assert.Error(t, err)
}

func TestRenderCarriesTempoChangesForMidiOutput(t *testing.T) {
	entry := "entry.deva"
	restore := withMemSource(t, entry, "bpm 120\nlet lead = synth sine\nlead -> note(A4, {duration: 200})\nbpm 140\nlead -> note(A4, {duration: 200})\n")
	defer restore()

	proj := project.Defaults()
	rr, err := Render(entry, proj, 1, 0)
	require.NoError(t, err)
	require.Len(t, rr.TempoPoints, 2)
	assert.Equal(t, 120.0, rr.TempoPoints[0].Bpm)
	assert.Equal(t, 140.0, rr.TempoPoints[1].Bpm)

	dir := t.TempDir()
	proj.Paths.Output = dir
	proj.Audio.Format = []string{"mid"}
	require.NoError(t, WriteOutputs(proj, "song", rr.PCM, rr.Events, rr.TempoPoints))
	assert.FileExists(t, filepath.Join(dir, "song.mid"))
}
