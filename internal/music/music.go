// Package music converts between MIDI note numbers, note-name identifiers
// (as they appear as arrow-call arguments, e.g. "A4", "c#3"), frequencies in
// Hz, chords and scales.
package music

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MidiToNoteName converts MIDI note number (0-127) to note name like "c-1", "c#4", etc.
// For negative octaves: natural notes show minus (e.g., "c-1"), sharp notes drop minus (e.g., "f#1") - all stay 3 chars
// MIDI note 60 = C4, note 21 = A0, etc.
func MidiToNoteName(midiNote int) string {
	if midiNote < 0 || midiNote > 127 {
		return "---"
	}

	noteNames := []string{"c", "c#", "d", "d#", "e", "f", "f#", "g", "g#", "a", "a#", "b"}

	// Calculate octave (MIDI note 12 = C0)
	octave := (midiNote / 12) - 1

	// Get note name
	noteName := noteNames[midiNote%12]

	// Always maintain exactly 3 characters for all notes
	if strings.Contains(noteName, "#") {
		// Sharp notes: "c#4", "f#1" (already 3 chars for most cases)
		if octave < 0 {
			return fmt.Sprintf("%s%d", noteName, -octave) // "c#1" for negative
		} else {
			return fmt.Sprintf("%s%d", noteName, octave) // "c#4" for positive
		}
	} else {
		// Natural notes: always use minus separator to reach 3 chars
		if octave < 0 {
			return fmt.Sprintf("%s-%d", noteName, -octave) // "c-1" for negative
		} else {
			return fmt.Sprintf("%s-%d", noteName, octave) // "c-4" for positive
		}
	}
}

var pitchClass = map[byte]int{
	'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11,
}

// NoteNameToMIDI parses a note-name identifier such as "C4", "a#3", "Bb2" into
// a MIDI note number. Accidentals are '#' (sharp) or 'b'/'B' (flat)
// immediately after the letter; negative octaves use a '-' prefix ("c-1").
func NoteNameToMIDI(s string) (int, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("not a note name: %q", s)
	}
	letter := s[0] | 0x20 // lowercase
	base, ok := pitchClass[letter]
	if !ok {
		return 0, fmt.Errorf("not a note name: %q", s)
	}
	rest := s[1:]
	accidental := 0
	if len(rest) > 0 {
		switch rest[0] {
		case '#':
			accidental = 1
			rest = rest[1:]
		case 'b', 'B':
			accidental = -1
			rest = rest[1:]
		}
	}
	negative := strings.HasPrefix(rest, "-")
	if negative {
		rest = rest[1:]
	}
	if rest == "" {
		return 0, fmt.Errorf("not a note name: %q", s)
	}
	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("not a note name: %q", s)
	}
	if negative {
		octave = -octave
	}
	note := (octave+1)*12 + base + accidental
	if note < 0 || note > 127 {
		return 0, fmt.Errorf("note %q out of MIDI range", s)
	}
	return note, nil
}

// MidiToFreq converts a MIDI note number to frequency in Hz using A4=440Hz (MIDI 69).
func MidiToFreq(midiNote float64) float64 {
	return 440.0 * math.Pow(2, (midiNote-69)/12.0)
}

// FreqToMidi is MidiToFreq's inverse, rounded to the nearest semitone and
// clamped to the MIDI range; used by internal/midiwriter since a NoteOn
// event only carries a resolved frequency, not the MIDI note it came from.
func FreqToMidi(freqHz float64) int {
	if freqHz <= 0 {
		return 0
	}
	note := int(math.Round(69 + 12*math.Log2(freqHz/440.0)))
	if note < 0 {
		return 0
	}
	if note > 127 {
		return 127
	}
	return note
}

// Scale is a named musical scale expressed as semitone offsets within an octave.
type Scale struct {
	Name  string
	Notes []int
}

// Scales holds the built-in scales available to $mod.quantize and pattern quantization.
var Scales = map[string]Scale{
	"all":        {Name: "All Notes", Notes: []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}},
	"major":      {Name: "Major", Notes: []int{0, 2, 4, 5, 7, 9, 11}},
	"minor":      {Name: "Minor", Notes: []int{0, 2, 3, 5, 7, 8, 10}},
	"dorian":     {Name: "Dorian", Notes: []int{0, 2, 3, 5, 7, 9, 10}},
	"mixolydian": {Name: "Mixolydian", Notes: []int{0, 2, 4, 5, 7, 9, 10}},
	"pentatonic": {Name: "Pentatonic", Notes: []int{0, 2, 4, 7, 9}},
	"blues":      {Name: "Blues", Notes: []int{0, 3, 5, 6, 7, 10}},
	"chromatic":  {Name: "Chromatic", Notes: []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}},
}

// QuantizeToScale quantizes a MIDI note to the closest note in the named
// scale, transposed to scaleRoot (0=C .. 11=B). An unknown scale name passes
// the note through unchanged.
func QuantizeToScale(note int, scaleName string, scaleRoot int) int {
	scale, exists := Scales[scaleName]
	if !exists {
		return note
	}

	if note < 0 {
		octaves := (-note / 12) + 1
		note += octaves * 12
	}

	octave := note / 12
	noteInOctave := note % 12

	transposed := (noteInOctave - scaleRoot + 12) % 12

	minDistance := 12
	closest := transposed
	for _, scaleNote := range scale.Notes {
		d := abs(transposed - scaleNote)
		if d < minDistance {
			minDistance = d
			closest = scaleNote
		}
	}

	final := (closest + scaleRoot) % 12
	return octave*12 + final
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// ChordNotes returns the MIDI note numbers (root plus stacked intervals) for
// a chord quality used by arrow-call chord(...) arguments, e.g.
// chord(C4, "maj7").
func ChordNotes(root int, quality string) []int {
	notes := []int{root}
	switch strings.ToLower(quality) {
	case "", "maj", "major":
		notes = append(notes, root+4, root+7)
	case "min", "minor", "m":
		notes = append(notes, root+3, root+7)
	case "dim", "diminished":
		notes = append(notes, root+3, root+6)
	case "aug", "augmented":
		notes = append(notes, root+4, root+8)
	case "maj7":
		notes = append(notes, root+4, root+7, root+11)
	case "min7", "m7":
		notes = append(notes, root+3, root+7, root+10)
	case "dom7", "7":
		notes = append(notes, root+4, root+7, root+10)
	case "sus2":
		notes = append(notes, root+2, root+7)
	case "sus4":
		notes = append(notes, root+5, root+7)
	}
	return notes
}
