// Package render implements C7: turning a schedule.EventStream into an
// interleaved f32 PCM buffer via in-process oscillator synthesis and sample
// playback. The teacher renders nothing itself — it streams OSC messages to
// a running SuperCollider server and lets that process do the DSP — so this
// package's two-pass buffer-then-mix structure is grounded on the
// synthesis primitives in internal/dsp (see DESIGN.md) rather than on any
// teacher file.
package render

import (
	"math"
	"sort"

	"github.com/schollz/collidertracker/internal/automation"
	"github.com/schollz/collidertracker/internal/diag"
	"github.com/schollz/collidertracker/internal/dsp"
	"github.com/schollz/collidertracker/internal/sampleprovider"
	"github.com/schollz/collidertracker/internal/schedule"
)

// TempoPoint mirrors schedule.TempoChange, so Render takes the tempo
// timeline as plain values rather than a *schedule.Scheduler; render's only
// use of package schedule is the EventStream types (spec §2).
type TempoPoint struct {
	AtBeat float64
	Bpm    float64
}

// Options configures one Render call (spec §4.7).
type Options struct {
	SampleRate           int // Hz, default 44100
	Channels             int // 1 or 2, default 2
	TempoPoints          []TempoPoint
	TotalDurationSeconds float64 // optional cap; 0 = uncapped
	ResampleQuality      dsp.Quality
	Seed                 int64
}

func (o Options) sampleRate() float64 { return float64(o.SampleRate) }

func normalize(opts Options) Options {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 44100
	}
	if opts.Channels == 0 {
		opts.Channels = 2
	}
	if len(opts.TempoPoints) == 0 {
		opts.TempoPoints = []TempoPoint{{AtBeat: 0, Bpm: 120}}
	} else {
		sorted := append([]TempoPoint{}, opts.TempoPoints...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].AtBeat < sorted[j].AtBeat })
		opts.TempoPoints = sorted
	}
	if opts.ResampleQuality == 0 {
		opts.ResampleQuality = dsp.Sinc16
	}
	return opts
}

// Render implements the render(EventStream, RenderOptions) -> PCM contract
// of spec §4.7. provider may be nil; every SamplePlay event then renders as
// silence with a warning, matching the "missing sample" render-warning
// class (spec §7).
func Render(es schedule.EventStream, provider *sampleprovider.Provider, opts Options, log *diag.Log) []float32 {
	opts = normalize(opts)

	var maxSec float64
	for _, e := range es {
		end := beatsToSeconds(e.TStartBeats+e.TDurBeats, opts.TempoPoints)
		if end > maxSec {
			maxSec = end
		}
	}
	if opts.TotalDurationSeconds > 0 && opts.TotalDurationSeconds < maxSec {
		maxSec = opts.TotalDurationSeconds
	}
	totalFrames := int(math.Ceil(maxSec * opts.sampleRate()))
	buf := make([]float32, totalFrames*opts.Channels)

	for _, e := range es {
		switch e.Kind {
		case schedule.KindNoteOn:
			renderNoteOn(buf, e, opts, log)
		case schedule.KindSamplePlay:
			renderSamplePlay(buf, e, provider, opts, log)
		case schedule.KindControlChange, schedule.KindMarker:
			// Carry no PCM of their own; a ControlChange's effect is already
			// baked into the Automations/params of the events it targets by
			// the time C5 hands us the stream.
		}
	}

	softLimit(buf)
	return buf
}

// beatsToSeconds walks the piecewise-constant tempo timeline (spec §4.5's
// "global tempo"), accumulating seconds per segment until beat is reached.
func beatsToSeconds(beat float64, tempo []TempoPoint) float64 {
	var secs float64
	for i, tp := range tempo {
		if beat <= tp.AtBeat {
			break
		}
		segEnd := math.Inf(1)
		if i+1 < len(tempo) {
			segEnd = tempo[i+1].AtBeat
		}
		end := beat
		if segEnd < end {
			end = segEnd
		}
		if span := end - tp.AtBeat; span > 0 {
			secs += span * 60.0 / tp.Bpm
		}
		if beat <= segEnd {
			break
		}
	}
	return secs
}

func renderNoteOn(buf []float32, e schedule.Event, opts Options, log *diag.Log) {
	p := e.NoteOn
	sr := opts.sampleRate()
	startSec := beatsToSeconds(e.TStartBeats, opts.TempoPoints)
	endSec := beatsToSeconds(e.TStartBeats+e.TDurBeats, opts.TempoPoints)
	durSec := endSec - startSec
	if durSec <= 0 {
		durSec = 1.0 / sr
	}
	startFrame := int(math.Round(startSec * sr))
	frames := int(math.Round(durSec * sr))
	if frames < 1 {
		frames = 1
	}

	osc := dsp.NewOscillator(dsp.ParseWaveform(p.Waveform), uint64(opts.Seed)^uint64(startFrame)^uint64(len(p.Waveform)))
	adsr := dsp.ADSR{AttackMs: p.ADSR.AttackMs, DecayMs: p.ADSR.DecayMs, Sustain: p.ADSR.Sustain, ReleaseMs: p.ADSR.ReleaseMs}
	durMs := durSec * 1000

	lfos := buildLFOs(p.LFOs)
	pitchLFO := lfos["pitch"]

	mono := make([]float32, frames)
	for i := range mono {
		tMs := float64(i) / sr * 1000
		freq := p.Freq
		if pitchLFO != nil {
			beat := e.TStartBeats + e.TDurBeats*float64(i)/float64(frames)
			freq *= math.Pow(2, pitchLFO.At(beat)/12.0)
		}
		mono[i] = float32(osc.Next(freq, sr) * adsr.At(tMs, durMs))
	}

	// Automation on a named parameter that isn't velocity/pan/a recognized
	// gain alias falls through to a once-per-note effect-param override at
	// the note's midpoint; true per-sample cutoff/feedback modulation would
	// need per-effect automation hooks this catalogue of stateless
	// dsp.Effect stages doesn't expose.
	chain := buildChain(p.Effects, effectOverrides(p.Automations, 0.5), log)
	if len(chain.Stages) > 0 {
		chain.Process(mono, 1, sr)
	}

	velAuto := findAutomation(p.Automations, "velocity")
	panAuto := findAutomation(p.Automations, "pan")
	gainAuto := findGainAutomation(p.Automations)
	ampLFO := lfos["amp"]
	panLFO := lfos["pan"]

	for i, v := range mono {
		frac := float64(i) / float64(frames)
		beat := e.TStartBeats + e.TDurBeats*frac
		vel := p.Velocity
		if velAuto != nil {
			vel = velAuto.SampleAt(frac)
		}
		gain := 1.0
		if gainAuto != nil {
			gain = gainAuto.SampleAt(frac)
		}
		if ampLFO != nil {
			gain *= math.Max(0, 1+ampLFO.At(beat))
		}
		pan := p.Pan
		if panAuto != nil {
			pan = panAuto.SampleAt(frac)
		}
		if panLFO != nil {
			pan = clampPan(pan + panLFO.At(beat))
		}
		writeFrame(buf, startFrame+i, opts.Channels, v*float32(vel*gain), pan)
	}
}

// gainParamNames lists the automation/control-change parameter spellings
// that drive a note's overall amplitude (spec §8 scenario 5 uses "volume";
// other aliases are accepted for robustness since spec.md does not fix one
// canonical name).
var gainParamNames = []string{"volume", "amp", "amplitude", "gain"}

func findGainAutomation(autos []*automation.Automation) *automation.Automation {
	for _, name := range gainParamNames {
		if a := findAutomation(autos, name); a != nil {
			return a
		}
	}
	return nil
}

func isGainParam(name string) bool {
	for _, n := range gainParamNames {
		if n == name {
			return true
		}
	}
	return false
}

func clampPan(p float64) float64 {
	if p < -1 {
		return -1
	}
	if p > 1 {
		return 1
	}
	return p
}

// buildLFOs reconstructs automation.LFO values from schedule.LFOSpec,
// keyed by the event parameter each one drives (spec §4.6: "LFOs are a
// distinct modulator class... produce a continuous function of beats").
func buildLFOs(specs []schedule.LFOSpec) map[string]*automation.LFO {
	if len(specs) == 0 {
		return nil
	}
	out := make(map[string]*automation.LFO, len(specs))
	for _, s := range specs {
		out[s.Target] = &automation.LFO{RatePerBeat: s.RatePerBeat, Depth: s.Depth, Shape: s.Shape}
	}
	return out
}

// writeFrame sums s into buf at frame, applying the constant-power pan law
// across stereo channels (spec §4.7); mono output ignores pan entirely.
func writeFrame(buf []float32, frame, channels int, s float32, pan float64) {
	idx := frame * channels
	if frame < 0 || idx+channels > len(buf) {
		return
	}
	if channels == 1 {
		buf[idx] += s
		return
	}
	left := float32(math.Cos((pan + 1) * math.Pi / 4))
	right := float32(math.Sin((pan + 1) * math.Pi / 4))
	buf[idx] += s * left
	buf[idx+1] += s * right
}

func renderSamplePlay(buf []float32, e schedule.Event, provider *sampleprovider.Provider, opts Options, log *diag.Log) {
	p := e.SamplePlay
	sr := opts.sampleRate()
	startSec := beatsToSeconds(e.TStartBeats, opts.TempoPoints)
	startFrame := int(math.Round(startSec * sr))

	if provider == nil {
		warnf(log, "sample provider unavailable, rendering %q as silence", p.SampleURI)
		return
	}
	sample, err := provider.Resolve(p.SampleURI)
	if err != nil {
		warnf(log, "missing sample %q: %v", p.SampleURI, err)
		return
	}

	speed := p.Speed
	if speed <= 0 {
		speed = 1
	}
	chans := splitChannels(sample.PCM, sample.Channels)
	if p.Reverse {
		for _, c := range chans {
			reverseInPlace(c)
		}
	}
	for i, c := range chans {
		chans[i] = dsp.Resample(c, float64(sample.SampleRate)*speed, sr, opts.ResampleQuality)
	}
	chans = convertChannelCount(chans, opts.Channels)

	data := interleave(chans)
	chain := buildChain(p.Effects, effectOverrides(p.Automations, 0.5), log)
	if len(chain.Stages) > 0 {
		chain.Process(data, opts.Channels, sr)
	}

	applyGainModulation(data, opts.Channels, findGainAutomation(p.Automations), buildLFOs(p.LFOs)["amp"], e)

	mixInto(buf, startFrame, opts.Channels, data)
}

// applyGainModulation scales every channel of each frame by a generic
// named-parameter automation (spec §8 scenario 5's "volume" ramp, or any
// gain-alias param) and/or an `amp`-targeted LFO, the same per-sample
// modulation renderNoteOn applies, generalized to a multi-channel buffer.
func applyGainModulation(data []float32, channels int, gainAuto *automation.Automation, ampLFO *automation.LFO, e schedule.Event) {
	if gainAuto == nil && ampLFO == nil {
		return
	}
	if channels < 1 {
		channels = 1
	}
	frames := len(data) / channels
	if frames == 0 {
		return
	}
	for f := 0; f < frames; f++ {
		frac := float64(f) / float64(frames)
		gain := 1.0
		if gainAuto != nil {
			gain = gainAuto.SampleAt(frac)
		}
		if ampLFO != nil {
			beat := e.TStartBeats + e.TDurBeats*frac
			gain *= math.Max(0, 1+ampLFO.At(beat))
		}
		for c := 0; c < channels; c++ {
			data[f*channels+c] *= float32(gain)
		}
	}
}

func mixInto(buf []float32, startFrame, channels int, data []float32) {
	if startFrame < 0 {
		return
	}
	frames := len(data) / channels
	for f := 0; f < frames; f++ {
		outIdx := (startFrame + f) * channels
		if outIdx < 0 || outIdx+channels > len(buf) {
			break
		}
		for c := 0; c < channels; c++ {
			buf[outIdx+c] += data[f*channels+c]
		}
	}
}

func splitChannels(pcm []float32, channels int) [][]float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(pcm) / channels
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, frames)
	}
	for f := 0; f < frames; f++ {
		for c := 0; c < channels; c++ {
			out[c][f] = pcm[f*channels+c]
		}
	}
	return out
}

func interleave(chans [][]float32) []float32 {
	if len(chans) == 0 {
		return nil
	}
	frames := len(chans[0])
	out := make([]float32, frames*len(chans))
	for f := 0; f < frames; f++ {
		for c := range chans {
			out[f*len(chans)+c] = chans[c][f]
		}
	}
	return out
}

// convertChannelCount implements spec §4.7's "mono source -> stereo:
// duplicate channels. Stereo -> mono: RMS-preserving downmix (sum * 1/sqrt2)".
func convertChannelCount(chans [][]float32, target int) [][]float32 {
	src := len(chans)
	if src == target || src == 0 {
		return chans
	}
	if src == 1 && target == 2 {
		return [][]float32{chans[0], append([]float32{}, chans[0]...)}
	}
	if src == 2 && target == 1 {
		const invSqrt2 = 0.70710678
		frames := len(chans[0])
		mono := make([]float32, frames)
		for f := 0; f < frames; f++ {
			mono[f] = (chans[0][f] + chans[1][f]) * invSqrt2
		}
		return [][]float32{mono}
	}
	out := make([][]float32, target)
	for i := range out {
		out[i] = chans[i%src]
	}
	return out
}

func reverseInPlace(buf []float32) {
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
}

func buildChain(effects []schedule.EffectSpec, overrides map[string]float64, log *diag.Log) *dsp.Chain {
	stages := make([]dsp.Effect, 0, len(effects))
	for _, spec := range effects {
		params := spec.Params
		if len(overrides) > 0 {
			merged := make(map[string]float64, len(params))
			for k, v := range params {
				merged[k] = v
			}
			for k, v := range overrides {
				if _, ok := merged[k]; ok {
					merged[k] = v
				}
			}
			params = merged
		}
		eff, ok := dsp.NewEffect(spec.Kind, params)
		if !ok {
			warnf(log, "unknown effect %q, skipping", spec.Kind) // spec §4.7/§7
			continue
		}
		stages = append(stages, eff)
	}
	return &dsp.Chain{Stages: stages}
}

func effectOverrides(autos []*automation.Automation, fraction float64) map[string]float64 {
	if len(autos) == 0 {
		return nil
	}
	out := make(map[string]float64, len(autos))
	for _, a := range autos {
		if a.Param == "velocity" || a.Param == "pan" || isGainParam(a.Param) {
			continue // handled as per-sample modulation, not a once-per-note effect param
		}
		out[a.Param] = a.SampleAt(fraction)
	}
	return out
}

func findAutomation(autos []*automation.Automation, param string) *automation.Automation {
	for _, a := range autos {
		if a.Param == param {
			return a
		}
	}
	return nil
}

// softLimit applies the global tanh soft-limiter from spec §4.7's final
// pass; tanh(x) ~= x near 0 so quiet passages pass through essentially
// unchanged while anything pushing past +-1 saturates instead of clipping.
func softLimit(buf []float32) {
	for i, v := range buf {
		buf[i] = float32(math.Tanh(float64(v)))
	}
}

func warnf(log *diag.Log, format string, args ...any) {
	if log == nil {
		return
	}
	log.Warnf("", 0, 0, format, args...)
}
