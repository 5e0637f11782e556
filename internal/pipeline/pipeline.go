// Package pipeline wires C1-C8 together: resolve a module graph, schedule it
// into an EventStream, render that stream to PCM, and write the configured
// output formats. It is the single entrypoint cmd/devalang drives; nothing
// else in this repo imports resolve, schedule, and render all at once.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/collidertracker/internal/diag"
	"github.com/schollz/collidertracker/internal/midiwriter"
	"github.com/schollz/collidertracker/internal/project"
	"github.com/schollz/collidertracker/internal/render"
	"github.com/schollz/collidertracker/internal/resolve"
	"github.com/schollz/collidertracker/internal/sampleprovider"
	"github.com/schollz/collidertracker/internal/schedule"
	"github.com/schollz/collidertracker/internal/wavwriter"
)

// CompileResult is the outcome of resolving and scheduling one entry file.
// Events and Provider are nil when resolution reported an error, since
// scheduling never ran (spec §7: resolution errors halt the pipeline before
// scheduling). Error-level entries the scheduler logs itself also make Fatal
// true, with Events populated.
type CompileResult struct {
	Graph       *resolve.Graph
	Events      schedule.EventStream
	Provider    *sampleprovider.Provider
	Scheduler   *schedule.Scheduler
	Diagnostics []diag.Entry
}

// Fatal reports whether CompileResult carries an error-level diagnostic,
// from resolution (Events/Provider never produced) or from scheduling.
func (r *CompileResult) Fatal() bool {
	for _, e := range r.Diagnostics {
		if e.Level == diag.Error {
			return true
		}
	}
	return false
}

// resolveFn performs the actual module-graph resolution; tests swap it for
// an in-memory resolve.Source so they never touch the real filesystem.
var resolveFn = func(entryPath string) (*resolve.Graph, error) {
	return resolve.Resolve(entryPath, resolve.FileSource{})
}

// Compile resolves entryPath's module graph and schedules it, honoring
// proj's bpm and the bank-root convention a bank's modules live alongside
// (see registerBankRoots). seed drives any stochastic operations the
// scheduler performs (spec §4.5's `random`/`shuffle` helpers).
func Compile(entryPath string, proj project.Project, seed int64) (*CompileResult, error) {
	graph, err := resolveFn(entryPath)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", entryPath, err)
	}
	if graph.HasErrors() {
		return &CompileResult{Graph: graph, Diagnostics: collectDiagnostics(graph)}, nil
	}

	log := &diag.Log{}
	provider := sampleprovider.New()
	registerBankRoots(graph, provider)

	sched := schedule.New(provider, log, schedule.Options{DefaultBpm: proj.Audio.Bpm, Seed: seed})
	events, err := sched.Schedule(graph.Entry)
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", entryPath, err)
	}

	diagnostics := collectDiagnostics(graph)
	diagnostics = append(diagnostics, log.Entries()...)
	return &CompileResult{
		Graph:       graph,
		Events:      events,
		Provider:    provider,
		Scheduler:   sched,
		Diagnostics: diagnostics,
	}, nil
}

// registerBankRoots binds every bank a resolved module declares to a
// filesystem directory, since resolve.Bank carries only the bank's
// fullname/alias/triggers and never a root path (bank/addon package
// management is out of scope; see DESIGN.md). The convention: a bank's
// samples live in a `banks/<fullname>/` directory alongside the `.deva`
// file that declared it, mirroring how `@load` resolves relative paths
// against the declaring module's own directory.
func registerBankRoots(graph *resolve.Graph, provider *sampleprovider.Provider) {
	for _, mod := range graph.Modules {
		for _, bank := range mod.Banks {
			root := filepath.Join(mod.Dir, "banks", bank.Fullname)
			provider.RegisterBankRoot(bank.Fullname, root)
		}
	}
}

func collectDiagnostics(graph *resolve.Graph) []diag.Entry {
	var out []diag.Entry
	for _, mod := range graph.Modules {
		out = append(out, mod.Errors.Entries()...)
	}
	return out
}

// RenderResult is the outcome of rendering a compiled EventStream to PCM.
type RenderResult struct {
	PCM         []float32
	Events      schedule.EventStream
	TempoPoints []midiwriter.TempoPoint // scheduler's tempo timeline, for WriteOutputs' MIDI track
	Warnings    []diag.Entry
}

// Render compiles entryPath and renders its EventStream to interleaved f32
// PCM using proj's audio settings. totalDurationCap bounds an unbounded
// `loop:` the way render.Options.TotalDurationSeconds does; 0 leaves the
// scheduler's own loop cap (spec §4.5) as the only bound.
func Render(entryPath string, proj project.Project, seed int64, totalDurationCap float64) (*RenderResult, error) {
	cr, err := Compile(entryPath, proj, seed)
	if err != nil {
		return nil, err
	}
	if cr.Fatal() {
		return &RenderResult{Warnings: cr.Diagnostics}, nil
	}

	renderTempo := make([]render.TempoPoint, 0)
	midiTempo := make([]midiwriter.TempoPoint, 0)
	for _, tc := range cr.Scheduler.TempoChanges() {
		renderTempo = append(renderTempo, render.TempoPoint{AtBeat: tc.AtBeat, Bpm: tc.Bpm})
		midiTempo = append(midiTempo, midiwriter.TempoPoint{AtBeat: tc.AtBeat, Bpm: tc.Bpm})
	}
	opts := render.Options{
		SampleRate:           proj.Audio.SampleRate,
		Channels:             proj.Audio.Channels,
		TempoPoints:          renderTempo,
		TotalDurationSeconds: totalDurationCap,
		ResampleQuality:      proj.ResampleQuality(),
		Seed:                 seed,
	}

	renderLog := &diag.Log{}
	pcm := render.Render(cr.Events, cr.Provider, opts, renderLog)

	warnings := append(append([]diag.Entry{}, cr.Diagnostics...), renderLog.Entries()...)
	return &RenderResult{PCM: pcm, Events: cr.Events, TempoPoints: midiTempo, Warnings: warnings}, nil
}

// WriteOutputs writes pcm and events to proj.Paths.Output in every format
// proj.Audio.Format lists (spec §6), naming each file after basename. tempo
// is the scheduler's tempo timeline (RenderResult.TempoPoints); an empty
// tempo falls back to proj.Audio.Bpm as a single constant-tempo MIDI track.
func WriteOutputs(proj project.Project, basename string, pcm []float32, events schedule.EventStream, tempo []midiwriter.TempoPoint) error {
	if err := os.MkdirAll(proj.Paths.Output, 0o755); err != nil {
		return fmt.Errorf("create output dir %q: %w", proj.Paths.Output, err)
	}

	if proj.HasFormat("wav") {
		path := filepath.Join(proj.Paths.Output, basename+".wav")
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %q: %w", path, err)
		}
		werr := wavwriter.Write(f, pcm, wavwriter.Options{
			SampleRate: proj.Audio.SampleRate,
			Channels:   proj.Audio.Channels,
			BitDepth:   proj.Audio.BitDepth,
		})
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			return fmt.Errorf("write %q: %w", path, werr)
		}
	}

	if proj.HasFormat("mid") {
		path := filepath.Join(proj.Paths.Output, basename+".mid")
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %q: %w", path, err)
		}
		werr := midiwriter.Write(f, events, midiwriter.Options{Bpm: proj.Audio.Bpm, TempoPoints: tempo})
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			return fmt.Errorf("write %q: %w", path, werr)
		}
	}

	if proj.HasFormat("mp3") {
		return fmt.Errorf("mp3 output is not implemented")
	}

	return nil
}
