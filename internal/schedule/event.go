// Package schedule implements C5: converting a resolved module's evaluated
// statements into a time-stamped EventStream, honoring BPM, sleep, loop,
// call/spawn concurrency, and automation registration (spec §4.5).
package schedule

import (
	"sort"

	"github.com/schollz/collidertracker/internal/automation"
)

// PayloadKind tags the variant of an Event's payload (spec §3).
type PayloadKind int

const (
	KindNoteOn PayloadKind = iota
	KindSamplePlay
	KindControlChange
	KindMarker
)

// EffectSpec is one `(kind, params)` stage of a declaration-ordered effect
// chain (spec §4.7/§9).
type EffectSpec struct {
	Kind   string
	Params map[string]float64
}

// LFOSpec is one `-> lfo(rate, depth, shape, target)` arrow-call stage: a
// continuous modulator driving a named event parameter (pitch, amp, pan),
// evaluated per audio sample rather than via keypoints (spec §4.5/§4.6).
// It mirrors automation.LFO's fields without importing internal/automation's
// behavior, so Target (which parameter it drives) travels alongside the
// rate/depth/shape the renderer needs to reconstruct an automation.LFO.
type LFOSpec struct {
	Target      string
	RatePerBeat float64
	Depth       float64
	Shape       string
}

// ADSRSpec mirrors dsp.ADSR's fields so the EventStream types carry no
// internal/dsp type (spec §2: "the scheduler
// and audio engine exchange only the EventStream contract").
type ADSRSpec struct {
	AttackMs, DecayMs, Sustain, ReleaseMs float64
}

// NoteOnPayload is a synthesized note event.
type NoteOnPayload struct {
	SynthRef  string
	Waveform  string
	Freq      float64
	Velocity  float64
	ADSR      ADSRSpec
	Pan       float64
	Effects   []EffectSpec
	Automations []*automation.Automation
	LFOs      []LFOSpec
}

// SamplePlayPayload is a sample-trigger event.
type SamplePlayPayload struct {
	SampleURI string
	Speed     float64
	Reverse   bool
	Effects   []EffectSpec
	Automations []*automation.Automation
	LFOs      []LFOSpec
}

// ControlChangePayload mutates a target voice's parameter from this point
// onward (spec §4.7).
type ControlChangePayload struct {
	Target string
	Param  string
	Value  float64
}

// MarkerPayload is a labeled point in the stream, used for `on`/`emit` and
// diagnostics.
type MarkerPayload struct {
	Label string
}

// Event is one entry of the totally ordered EventStream (spec §3).
type Event struct {
	TStartBeats float64
	TDurBeats   float64
	Kind        PayloadKind

	NoteOn        *NoteOnPayload
	SamplePlay    *SamplePlayPayload
	ControlChange *ControlChangePayload
	Marker        *MarkerPayload

	// seq and laneBirth implement spec §5's tie-break rule: events with
	// identical TStartBeats sort by the order their lane was spawned, then
	// by textual discovery order within that lane.
	laneBirth int
	seq       int
}

// EventStream is the totally ordered event sequence produced by Schedule.
type EventStream []Event

// Sort orders the stream by (TStartBeats, laneBirth, seq), satisfying
// spec §8's "events[i].t_start <= events[i+1].t_start" and the tie-break
// rule from §4.5/§5.
func (es EventStream) Sort() {
	sort.SliceStable(es, func(i, j int) bool {
		if es[i].TStartBeats != es[j].TStartBeats {
			return es[i].TStartBeats < es[j].TStartBeats
		}
		if es[i].laneBirth != es[j].laneBirth {
			return es[i].laneBirth < es[j].laneBirth
		}
		return es[i].seq < es[j].seq
	})
}

// TotalDurationBeats returns the latest end time across all events, 0 for
// an empty stream.
func (es EventStream) TotalDurationBeats() float64 {
	var max float64
	for _, e := range es {
		end := e.TStartBeats + e.TDurBeats
		if end > max {
			max = end
		}
	}
	return max
}
