// Package dsp implements C7's synthesis primitives: oscillators, ADSR
// envelopes, the fixed effect/filter catalogue, and sinc resampling. The
// teacher delegates all audio synthesis to an external SuperCollider
// process over OSC, so none of its code does in-process DSP; these
// primitives are grounded on textbook digital-synthesis constructions
// (see DESIGN.md) in the teacher's plain, small-function style.
package dsp

import "math"

// Waveform names an oscillator shape (spec §4.7).
type Waveform int

const (
	Sine Waveform = iota
	Saw
	Square
	Triangle
	Pulse
	Noise
)

// ParseWaveform maps a source-level waveform name to its Waveform constant.
func ParseWaveform(name string) Waveform {
	switch name {
	case "saw":
		return Saw
	case "square":
		return Square
	case "triangle":
		return Triangle
	case "pulse":
		return Pulse
	case "noise":
		return Noise
	default:
		return Sine
	}
}

// Oscillator is a stateful phase accumulator producing one waveform sample
// per call to Next, so a voice can be rendered sample-by-sample alongside
// its envelope and modulation without buffering an entire cycle up front.
type Oscillator struct {
	Wave       Waveform
	Phase      float64 // 0..1
	PulseWidth float64 // duty cycle for Pulse, default 0.5
	rng        uint64  // xorshift state for Noise, seeded per-voice for determinism
}

// NewOscillator creates an oscillator seeded for deterministic noise
// generation (spec §8's render-determinism property extends to Noise
// voices: identical seed and inputs must yield identical PCM).
func NewOscillator(wave Waveform, seed uint64) *Oscillator {
	if seed == 0 {
		seed = 0x9E3779B97F4A7C15
	}
	pw := 0.5
	return &Oscillator{Wave: wave, PulseWidth: pw, rng: seed}
}

// Next returns the waveform value in [-1, 1] at the current phase, then
// advances the phase by freqHz/sampleRate.
func (o *Oscillator) Next(freqHz, sampleRate float64) float64 {
	v := o.valueAt(o.Phase)
	o.Phase += freqHz / sampleRate
	for o.Phase >= 1 {
		o.Phase -= 1
	}
	for o.Phase < 0 {
		o.Phase += 1
	}
	return v
}

func (o *Oscillator) valueAt(phase float64) float64 {
	switch o.Wave {
	case Sine:
		return math.Sin(2 * math.Pi * phase)
	case Saw:
		return 2*phase - 1
	case Square:
		if phase < 0.5 {
			return 1
		}
		return -1
	case Triangle:
		return 4*math.Abs(phase-0.5) - 1
	case Pulse:
		pw := o.PulseWidth
		if pw <= 0 || pw >= 1 {
			pw = 0.5
		}
		if phase < pw {
			return 1
		}
		return -1
	case Noise:
		o.rng ^= o.rng << 13
		o.rng ^= o.rng >> 7
		o.rng ^= o.rng << 17
		return (float64(o.rng%2_000_000) / 1_000_000.0) - 1
	default:
		return 0
	}
}
