package dsp

import "math"

// Effect is one stage of the fixed per-note/per-sample effect chain (spec
// §4.7/§9: "an ordered list of (kind, params_map); new effects are added by
// extending the kind enum and the renderer's match"). Process mutates buf
// in place; buf is interleaved by channels (1 or 2).
type Effect interface {
	Process(buf []float32, channels int, sampleRate float64)
}

// Chain applies a fixed, ordered sequence of effects, matching declaration
// order from the source (spec §4.7: "per-note effect chain in declaration
// order").
type Chain struct {
	Stages []Effect
}

func (c *Chain) Process(buf []float32, channels int, sampleRate float64) {
	for _, s := range c.Stages {
		s.Process(buf, channels, sampleRate)
	}
}

// NewEffect constructs the Effect for a named kind with its parameter map,
// returning (nil, false) for an unrecognized kind so the renderer can skip
// it and record a warning (spec §4.7 failure mode: "unknown effect name →
// skip the effect, record a warning").
func NewEffect(kind string, params map[string]float64) (Effect, bool) {
	switch kind {
	case "reverb":
		return &Reverb{Size: paramOr(params, "size", 0.5), Decay: paramOr(params, "decay", 0.5), Mix: paramOr(params, "mix", 0.3)}, true
	case "delay":
		return &Delay{TimeMs: paramOr(params, "time", 250), Feedback: paramOr(params, "feedback", 0.35), Mix: paramOr(params, "mix", 0.3)}, true
	case "dist":
		return &Distortion{Amount: paramOr(params, "amount", 0.5), Mix: paramOr(params, "mix", 1)}, true
	case "bitcrush":
		return &Bitcrush{Depth: paramOr(params, "depth", 8), SampleRateHz: paramOr(params, "sample_rate", 8000), Mix: paramOr(params, "mix", 1)}, true
	case "lpf":
		return &OnePoleFilter{Kind: lowPass, Cutoff: paramOr(params, "cutoff", 2000), Resonance: paramOr(params, "resonance", 0)}, true
	case "hpf":
		return &OnePoleFilter{Kind: highPass, Cutoff: paramOr(params, "cutoff", 200), Resonance: paramOr(params, "resonance", 0)}, true
	case "bpf":
		return &OnePoleFilter{Kind: bandPass, Cutoff: paramOr(params, "cutoff", 1000), Resonance: paramOr(params, "resonance", 0)}, true
	case "tremolo":
		return &Tremolo{RateHz: paramOr(params, "rate", 5), Depth: paramOr(params, "depth", 0.5)}, true
	case "vibrato":
		return &Vibrato{RateHz: paramOr(params, "rate", 5), Depth: paramOr(params, "depth", 0.01)}, true
	case "chorus":
		return &Chorus{RateHz: paramOr(params, "rate", 1.5), Depth: paramOr(params, "depth", 0.01), Mix: paramOr(params, "mix", 0.5)}, true
	case "drive":
		return &Drive{Amount: paramOr(params, "amount", 0.5)}, true
	case "monoizer":
		return &Monoizer{Enabled: paramOr(params, "enabled", 1) != 0, Mix: paramOr(params, "mix", 1)}, true
	case "stereo":
		return &StereoWidth{Width: paramOr(params, "width", 1)}, true
	case "freeze":
		return &Freeze{Enabled: paramOr(params, "enabled", 0) != 0, FadeMs: paramOr(params, "fade", 10), HoldMs: paramOr(params, "hold", 100)}, true
	default:
		return nil, false
	}
}

func paramOr(m map[string]float64, key string, def float64) float64 {
	if v, ok := m[key]; ok {
		return v
	}
	return def
}

// Reverb is a small Schroeder-style reverb built from four parallel comb
// filters mixed with the dry signal; it has no allpass stage (and is not a
// convolution reverb).
type Reverb struct {
	Size, Decay, Mix float64
}

func (r *Reverb) Process(buf []float32, channels int, sampleRate float64) {
	combMs := []float64{29.7, 37.1, 41.1, 43.7}
	frames := len(buf) / channels
	wet := make([]float32, len(buf))
	for _, ms := range combMs {
		delaySamples := int(ms * (0.5 + r.Size) * sampleRate / 1000)
		if delaySamples < 1 {
			delaySamples = 1
		}
		line := make([]float32, delaySamples)
		pos := 0
		for f := 0; f < frames; f++ {
			for c := 0; c < channels; c++ {
				idx := f*channels + c
				in := buf[idx]
				out := line[pos]
				line[pos] = in + out*float32(r.Decay)
				wet[idx] += out / float32(len(combMs))
				_ = c
			}
			pos = (pos + 1) % delaySamples
		}
	}
	for i := range buf {
		buf[i] = buf[i]*float32(1-r.Mix) + wet[i]*float32(r.Mix)
	}
}

// Delay is a simple feedback delay line.
type Delay struct {
	TimeMs, Feedback, Mix float64
}

func (d *Delay) Process(buf []float32, channels int, sampleRate float64) {
	frames := len(buf) / channels
	delaySamples := int(d.TimeMs * sampleRate / 1000)
	if delaySamples < 1 {
		delaySamples = 1
	}
	for c := 0; c < channels; c++ {
		line := make([]float32, delaySamples)
		pos := 0
		for f := 0; f < frames; f++ {
			idx := f*channels + c
			delayed := line[pos]
			line[pos] = buf[idx] + delayed*float32(d.Feedback)
			buf[idx] = buf[idx]*float32(1-d.Mix) + delayed*float32(d.Mix)
			pos = (pos + 1) % delaySamples
		}
	}
}

// Distortion is a soft-clip waveshaper.
type Distortion struct {
	Amount, Mix float64
}

func (e *Distortion) Process(buf []float32, channels int, sampleRate float64) {
	drive := 1 + float32(e.Amount*10)
	for i, v := range buf {
		shaped := float32(math.Tanh(float64(v * drive)))
		buf[i] = v*float32(1-e.Mix) + shaped*float32(e.Mix)
	}
}

// Bitcrush reduces bit depth and effective sample rate.
type Bitcrush struct {
	Depth, SampleRateHz, Mix float64
}

func (e *Bitcrush) Process(buf []float32, channels int, sampleRate float64) {
	levels := math.Pow(2, e.Depth)
	holdEvery := int(sampleRate / math.Max(1, e.SampleRateHz))
	if holdEvery < 1 {
		holdEvery = 1
	}
	var held float32
	for i, v := range buf {
		if i%holdEvery == 0 {
			q := math.Round(float64(v)*levels) / levels
			held = float32(q)
		}
		buf[i] = v*float32(1-e.Mix) + held*float32(e.Mix)
	}
}

type filterKind int

const (
	lowPass filterKind = iota
	highPass
	bandPass
)

// OnePoleFilter is a one-pole lowpass/highpass, with a crude bandpass
// derived from the highpass output; Resonance is stored but Process does
// not read it.
type OnePoleFilter struct {
	Kind          filterKind
	Cutoff        float64
	Resonance     float64
	loState, hiState float64
}

func (f *OnePoleFilter) Process(buf []float32, channels int, sampleRate float64) {
	rc := 1.0 / (2 * math.Pi * math.Max(1, f.Cutoff))
	dt := 1.0 / sampleRate
	alpha := dt / (rc + dt)
	lo := f.loState
	hi := 0.0
	for i, v := range buf {
		in := float64(v)
		lo += alpha * (in - lo)
		hiSample := in - lo
		switch f.Kind {
		case lowPass:
			buf[i] = float32(lo)
		case highPass:
			buf[i] = float32(hiSample)
		case bandPass:
			hi = hiSample - alpha*hi
			buf[i] = float32(hi)
		}
	}
	f.loState = lo
	_ = channels
}

// Tremolo amplitude-modulates the signal.
type Tremolo struct {
	RateHz, Depth float64
	phase         float64
}

func (t *Tremolo) Process(buf []float32, channels int, sampleRate float64) {
	frames := len(buf) / channels
	for f := 0; f < frames; f++ {
		g := 1 - t.Depth*(0.5+0.5*math.Sin(2*math.Pi*t.phase))
		for c := 0; c < channels; c++ {
			buf[f*channels+c] *= float32(g)
		}
		t.phase += t.RateHz / sampleRate
	}
}

// Vibrato modulates pitch via a small variable delay line.
type Vibrato struct {
	RateHz, Depth float64
	phase         float64
}

func (v *Vibrato) Process(buf []float32, channels int, sampleRate float64) {
	frames := len(buf) / channels
	maxDelay := int(v.Depth*sampleRate) + 2
	for c := 0; c < channels; c++ {
		line := make([]float32, maxDelay+1)
		pos := 0
		ph := v.phase
		for f := 0; f < frames; f++ {
			idx := f*channels + c
			line[pos%len(line)] = buf[idx]
			delaySamples := (1 + math.Sin(2*math.Pi*ph)) * 0.5 * v.Depth * sampleRate
			readPos := float64(pos) - delaySamples
			for readPos < 0 {
				readPos += float64(len(line))
			}
			i0 := int(readPos) % len(line)
			buf[idx] = line[i0]
			pos++
			ph += v.RateHz / sampleRate
		}
	}
	v.phase += v.RateHz / sampleRate * float64(frames)
}

// Chorus mixes in one modulated-delay voice.
type Chorus struct {
	RateHz, Depth, Mix float64
}

func (ch *Chorus) Process(buf []float32, channels int, sampleRate float64) {
	v := &Vibrato{RateHz: ch.RateHz, Depth: ch.Depth}
	wet := append([]float32{}, buf...)
	v.Process(wet, channels, sampleRate)
	for i := range buf {
		buf[i] = buf[i]*float32(1-ch.Mix) + wet[i]*float32(ch.Mix)
	}
}

// Drive is a simple symmetric tanh saturation for extra harmonic content.
type Drive struct {
	Amount float64
}

func (d *Drive) Process(buf []float32, channels int, sampleRate float64) {
	k := 1 + float32(d.Amount*4)
	for i, v := range buf {
		buf[i] = float32(math.Tanh(float64(v * k)))
	}
}

// Monoizer sums channels to mono (optionally blended with the original).
type Monoizer struct {
	Enabled bool
	Mix     float64
}

func (m *Monoizer) Process(buf []float32, channels int, sampleRate float64) {
	if !m.Enabled || channels < 2 {
		return
	}
	frames := len(buf) / channels
	for f := 0; f < frames; f++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += buf[f*channels+c]
		}
		mono := sum / float32(channels)
		for c := 0; c < channels; c++ {
			idx := f*channels + c
			buf[idx] = buf[idx]*float32(1-m.Mix) + mono*float32(m.Mix)
		}
	}
}

// StereoWidth scales the mid/side balance.
type StereoWidth struct {
	Width float64
}

func (s *StereoWidth) Process(buf []float32, channels int, sampleRate float64) {
	if channels != 2 {
		return
	}
	frames := len(buf) / 2
	for f := 0; f < frames; f++ {
		l, r := buf[f*2], buf[f*2+1]
		mid := (l + r) / 2
		side := (l - r) / 2 * float32(s.Width)
		buf[f*2] = mid + side
		buf[f*2+1] = mid - side
	}
}

// Freeze holds the buffer's value at freeze-start for HoldMs, with a
// fade-in/out of FadeMs at each edge to avoid clicks.
type Freeze struct {
	Enabled        bool
	FadeMs, HoldMs float64
}

func (fr *Freeze) Process(buf []float32, channels int, sampleRate float64) {
	if !fr.Enabled {
		return
	}
	frames := len(buf) / channels
	if frames == 0 {
		return
	}
	holdFrames := int(fr.HoldMs * sampleRate / 1000)
	fadeFrames := int(fr.FadeMs * sampleRate / 1000)
	frozen := make([]float32, channels)
	copy(frozen, buf[:channels])
	for f := 0; f < frames && f < holdFrames; f++ {
		gain := float32(1)
		if fadeFrames > 0 {
			if f < fadeFrames {
				gain = float32(f) / float32(fadeFrames)
			} else if f > holdFrames-fadeFrames {
				gain = float32(holdFrames-f) / float32(fadeFrames)
			}
		}
		for c := 0; c < channels; c++ {
			buf[f*channels+c] = frozen[c] * gain
		}
	}
}
