// Package project loads `devalang.json`/`devalang.toml` project
// configuration (spec §6), the way the teacher's internal/storage package
// loads its save file via json-iterator, generalized to also accept TOML
// via pelletier/go-toml/v2 for embedders that prefer it.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pelletier/go-toml/v2"

	"github.com/schollz/collidertracker/internal/dsp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Project mirrors spec §6's project-configuration key list exactly; no
// other keys are recognized.
type Project struct {
	Project struct {
		Name string `json:"name" toml:"name"`
	} `json:"project" toml:"project"`

	Paths struct {
		Entry  string `json:"entry" toml:"entry"`
		Output string `json:"output" toml:"output"`
	} `json:"paths" toml:"paths"`

	Audio struct {
		Format          []string `json:"format" toml:"format"`
		BitDepth        int      `json:"bit_depth" toml:"bit_depth"`
		Channels        int      `json:"channels" toml:"channels"`
		SampleRate      int      `json:"sample_rate" toml:"sample_rate"`
		ResampleQuality string   `json:"resample_quality" toml:"resample_quality"`
		Bpm             float64  `json:"bpm" toml:"bpm"`
	} `json:"audio" toml:"audio"`

	// Live is parsed for forward-compatibility but has no effect in the
	// compiler core; crossfade_ms is consumed only by a live-playback
	// collaborator this repo does not implement (spec §6's explicit
	// Non-goal for CrossfadeMs's consumer, not for the key itself).
	Live struct {
		CrossfadeMs float64 `json:"crossfade_ms" toml:"crossfade_ms"`
	} `json:"live" toml:"live"`
}

// Defaults returns the configuration a project gets when no config file is
// present, matching spec §4.7's RenderOptions defaults (44100 Hz, stereo,
// sinc16) and a plain `index.deva` entry point (spec §6).
func Defaults() Project {
	var p Project
	p.Paths.Entry = "index.deva"
	p.Paths.Output = "out"
	p.Audio.Format = []string{"wav"}
	p.Audio.BitDepth = 16
	p.Audio.Channels = 2
	p.Audio.SampleRate = 44100
	p.Audio.ResampleQuality = "sinc16"
	p.Audio.Bpm = 120
	return p
}

// Load reads and parses path, dispatching on its extension, starting from
// Defaults so a config file only needs to set the keys it wants to
// override.
func Load(path string) (Project, error) {
	p := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read project config %q: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &p); err != nil {
			return p, fmt.Errorf("parse %q as json: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &p); err != nil {
			return p, fmt.Errorf("parse %q as toml: %w", path, err)
		}
	default:
		return p, fmt.Errorf("unrecognized project config extension: %q", path)
	}
	return p, nil
}

// HasFormat reports whether name is listed in audio.format, case-insensitive
// (spec §6: "list subset of {wav, mp3, mid}").
func (p Project) HasFormat(name string) bool {
	for _, f := range p.Audio.Format {
		if strings.EqualFold(f, name) {
			return true
		}
	}
	return false
}

// ResampleQuality resolves audio.resample_quality to a dsp.Quality.
func (p Project) ResampleQuality() dsp.Quality {
	return dsp.ParseQuality(p.Audio.ResampleQuality)
}
