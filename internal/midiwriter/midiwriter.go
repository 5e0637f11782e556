// Package midiwriter implements C8's MIDI half: an EventStream becomes a
// Standard MIDI File, format 1, one track per distinct synth reference
// (spec §4.8). The teacher only ever streams live NoteOn/NoteOff over a
// MIDI connection (internal/midiplayer); this package reuses its
// gitlab.com/gomidi/midi/v2 message constructors but writes them into an
// smf.SMF instead of a drivers.Out.
package midiwriter

import (
	"fmt"
	"io"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/schollz/collidertracker/internal/music"
	"github.com/schollz/collidertracker/internal/schedule"
)

// ticksPerQuarter is the SMF division spec §4.8 fixes at 480 PPQ.
const ticksPerQuarter = 480

// TempoPoint is one piecewise-constant tempo segment start, mirroring
// render.TempoPoint; midiwriter stays decoupled from internal/render so the
// only contract between C5/C7/C8 is each package's own plain data type.
type TempoPoint struct {
	AtBeat float64
	Bpm    float64
}

// Options configures one Write call.
type Options struct {
	Bpm         float64      // fallback tempo when TempoPoints is empty; 0 defaults to 120
	TempoPoints []TempoPoint // full tempo timeline (spec.md:200: "Tempo changes emit a Meta Set Tempo event")
	Channel     uint8        // MIDI channel for every NoteOn/NoteOff, default 0
}

type noteEvent struct {
	tick     int64
	note     uint8
	velocity uint8
	isOn     bool
}

// Write renders es to an SMF format-1 file at w: one tempo/meta track, then
// one note track per distinct SynthRef, in first-seen order (spec §4.8).
func Write(w io.Writer, es schedule.EventStream, opts Options) error {
	if opts.Bpm <= 0 {
		opts.Bpm = 120
	}
	tempo := opts.TempoPoints
	if len(tempo) == 0 {
		tempo = []TempoPoint{{AtBeat: 0, Bpm: opts.Bpm}}
	} else {
		sorted := append([]TempoPoint{}, tempo...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].AtBeat < sorted[j].AtBeat })
		tempo = sorted
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(ticksPerQuarter)

	tempoTrack := smf.Track{}
	var lastTick int64
	for i, tp := range tempo {
		tick := beatsToTicks(tp.AtBeat)
		if i > 0 && tick <= lastTick {
			tick = lastTick + 1
		}
		tempoTrack.Add(uint32(tick-lastTick), smf.MetaTempo(tp.Bpm))
		lastTick = tick
	}
	tempoTrack.Close(0)
	s.Add(tempoTrack)

	var order []string
	byRef := map[string][]noteEvent{}
	for _, e := range es {
		if e.Kind != schedule.KindNoteOn {
			continue
		}
		ref := e.NoteOn.SynthRef
		if _, seen := byRef[ref]; !seen {
			order = append(order, ref)
		}
		startTick := beatsToTicks(e.TStartBeats)
		endTick := beatsToTicks(e.TStartBeats + e.TDurBeats)
		if endTick <= startTick {
			endTick = startTick + 1
		}
		note := uint8(music.FreqToMidi(e.NoteOn.Freq))
		vel := velocityByte(e.NoteOn.Velocity)
		byRef[ref] = append(byRef[ref],
			noteEvent{tick: startTick, note: note, velocity: vel, isOn: true},
			noteEvent{tick: endTick, note: note, velocity: 0, isOn: false},
		)
	}

	for _, ref := range order {
		track, err := buildTrack(byRef[ref], opts.Channel)
		if err != nil {
			return fmt.Errorf("build track %q: %w", ref, err)
		}
		s.Add(track)
	}

	_, err := s.WriteTo(w)
	return err
}

func buildTrack(events []noteEvent, channel uint8) (smf.Track, error) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}
		return !events[i].isOn && events[j].isOn // NoteOffs before same-tick NoteOns
	})

	tr := smf.Track{}
	var lastTick int64
	for _, ev := range events {
		delta := uint32(ev.tick - lastTick)
		lastTick = ev.tick
		if ev.isOn {
			tr.Add(delta, midi.NoteOn(channel, ev.note, ev.velocity))
		} else {
			tr.Add(delta, midi.NoteOff(channel, ev.note))
		}
	}
	tr.Close(0)
	return tr, nil
}

// beatsToTicks implements spec §4.8's `round(t_start_beats * 480)`.
func beatsToTicks(beats float64) int64 {
	return int64(beats*ticksPerQuarter + 0.5)
}

// velocityByte maps a [0,1] linear velocity to a MIDI 1..127 byte; 0 would
// be indistinguishable from a NoteOff, so velocities clamp to at least 1.
func velocityByte(v float64) uint8 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	b := int(v*127 + 0.5)
	if b < 1 {
		b = 1
	}
	return uint8(b)
}
