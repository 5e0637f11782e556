package midiwriter

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schollz/collidertracker/internal/schedule"
)

func TestBeatsToTicksUsesStandardDivision(t *testing.T) {
	assert.Equal(t, int64(480), beatsToTicks(1))
	assert.Equal(t, int64(240), beatsToTicks(0.5))
	assert.Equal(t, int64(0), beatsToTicks(0))
}

func TestVelocityByteClampsAndNeverZero(t *testing.T) {
	assert.Equal(t, uint8(127), velocityByte(1))
	assert.Equal(t, uint8(1), velocityByte(0))
	assert.Equal(t, uint8(64), velocityByte(0.5))
}

func TestWriteProducesNonEmptySMF(t *testing.T) {
	es := schedule.EventStream{
		{TStartBeats: 0, TDurBeats: 1, Kind: schedule.KindNoteOn, NoteOn: &schedule.NoteOnPayload{
			SynthRef: "lead", Freq: 440, Velocity: 0.8,
		}},
		{TStartBeats: 1, TDurBeats: 1, Kind: schedule.KindNoteOn, NoteOn: &schedule.NoteOnPayload{
			SynthRef: "lead", Freq: 523.25, Velocity: 0.8,
		}},
	}
	var buf bytes.Buffer
	err := Write(&buf, es, Options{Bpm: 120})
	require.NoError(t, err)
	assert.Greater(t, buf.Len(), 0)
	assert.Equal(t, "MThd", string(buf.Bytes()[:4]))
}

func TestWriteSplitsTracksBySynthRef(t *testing.T) {
	es := schedule.EventStream{
		{TStartBeats: 0, TDurBeats: 1, Kind: schedule.KindNoteOn, NoteOn: &schedule.NoteOnPayload{SynthRef: "lead", Freq: 440, Velocity: 0.5}},
		{TStartBeats: 0, TDurBeats: 1, Kind: schedule.KindNoteOn, NoteOn: &schedule.NoteOnPayload{SynthRef: "bass", Freq: 110, Velocity: 0.5}},
	}
	var buf bytes.Buffer
	err := Write(&buf, es, Options{Bpm: 120})
	require.NoError(t, err)
	// header (MThd) + tempo track (MTrk) + 2 note tracks (MTrk) = 3 MTrk chunks.
	assert.Equal(t, 3, bytes.Count(buf.Bytes(), []byte("MTrk")))
}

func TestWriteEmitsOneMetaTempoPerTempoChange(t *testing.T) {
	es := schedule.EventStream{
		{TStartBeats: 0, TDurBeats: 1, Kind: schedule.KindNoteOn, NoteOn: &schedule.NoteOnPayload{SynthRef: "lead", Freq: 440, Velocity: 0.8}},
		{TStartBeats: 4, TDurBeats: 1, Kind: schedule.KindNoteOn, NoteOn: &schedule.NoteOnPayload{SynthRef: "lead", Freq: 440, Velocity: 0.8}},
	}
	tempo := []TempoPoint{{AtBeat: 0, Bpm: 120}, {AtBeat: 2, Bpm: 90}, {AtBeat: 4, Bpm: 150}}

	var single bytes.Buffer
	require.NoError(t, Write(&single, es, Options{Bpm: 120}))
	metaTempo := []byte{0xff, 0x51, 0x03}
	assert.Equal(t, 1, bytes.Count(single.Bytes(), metaTempo))

	var multi bytes.Buffer
	require.NoError(t, Write(&multi, es, Options{Bpm: 120, TempoPoints: tempo}))
	assert.Equal(t, len(tempo), bytes.Count(multi.Bytes(), metaTempo))
}
