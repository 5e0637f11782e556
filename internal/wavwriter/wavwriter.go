// Package wavwriter implements C8's WAV half: interleaved f32 PCM becomes a
// RIFF/WAVE file at 16, 24, or 32-bit depth (spec §4.8/§6). The teacher
// never writes WAV files (playback goes out over OSC/MIDI), but its
// internal/getbpm package reads them via go-audio/wav; this package uses
// the same library's Encoder for the two integer depths. 32-bit output is
// IEEE-float PCM, a format go-audio/wav's Encoder does not itself emit, so
// that path is a small hand-rolled RIFF writer instead (see DESIGN.md).
package wavwriter

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// pcmFormatCode is the RIFF `fmt ` chunk's audio format tag for integer PCM.
const pcmFormatCode = 1

// ieeeFloatFormatCode is the RIFF `fmt ` chunk's audio format tag for
// 32-bit IEEE-float PCM (spec §4.8: "3 for float").
const ieeeFloatFormatCode = 3

// Options configures one Write call.
type Options struct {
	SampleRate int
	Channels   int
	BitDepth   int // 16, 24, or 32
}

// Write encodes interleaved f32 PCM in [-1, 1] to w as a RIFF/WAVE file at
// the configured bit depth (spec §6's `audio.bit_depth ∈ {16,24,32}`).
func Write(w io.WriteSeeker, pcm []float32, opts Options) error {
	switch opts.BitDepth {
	case 16, 24:
		return writeIntPCM(w, pcm, opts)
	case 32:
		return writeFloatPCM(w, pcm, opts)
	default:
		return fmt.Errorf("unsupported wav bit depth: %d", opts.BitDepth)
	}
}

func writeIntPCM(w io.WriteSeeker, pcm []float32, opts Options) error {
	enc := wav.NewEncoder(w, opts.SampleRate, opts.BitDepth, opts.Channels, pcmFormatCode)
	maxVal := float64(int64(1)<<(uint(opts.BitDepth)-1) - 1)

	ints := make([]int, len(pcm))
	for i, v := range pcm {
		ints[i] = quantize(v, maxVal)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: opts.Channels, SampleRate: opts.SampleRate},
		Data:           ints,
		SourceBitDepth: opts.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode pcm: %w", err)
	}
	return enc.Close()
}

// quantize scales a [-1,1] float sample to its signed integer representation
// at maxVal's bit depth, clamping rather than wrapping on overshoot (the
// render pipeline's soft-limiter should already keep samples in range; this
// guards the format boundary regardless).
func quantize(v float32, maxVal float64) int {
	f := float64(v) * maxVal
	if f > maxVal {
		f = maxVal
	}
	if f < -maxVal-1 {
		f = -maxVal - 1
	}
	return int(math.Round(f))
}

// writeFloatPCM hand-rolls a minimal RIFF/WAVE container for 32-bit
// IEEE-float PCM: a `fmt ` chunk with format code 3, then a `data` chunk of
// raw little-endian float32 samples (spec §4.8's bit-exact WAV layout).
func writeFloatPCM(w io.Writer, pcm []float32, opts Options) error {
	dataSize := uint32(len(pcm) * 4)
	byteRate := uint32(opts.SampleRate * opts.Channels * 4)
	blockAlign := uint16(opts.Channels * 4)
	riffSize := uint32(4) + (8 + 16) + (8 + dataSize) // "WAVE" + fmt chunk + data chunk

	var hdr bytes.Buffer
	hdr.WriteString("RIFF")
	binary.Write(&hdr, binary.LittleEndian, riffSize)
	hdr.WriteString("WAVE")
	hdr.WriteString("fmt ")
	binary.Write(&hdr, binary.LittleEndian, uint32(16))
	binary.Write(&hdr, binary.LittleEndian, uint16(ieeeFloatFormatCode))
	binary.Write(&hdr, binary.LittleEndian, uint16(opts.Channels))
	binary.Write(&hdr, binary.LittleEndian, uint32(opts.SampleRate))
	binary.Write(&hdr, binary.LittleEndian, byteRate)
	binary.Write(&hdr, binary.LittleEndian, blockAlign)
	binary.Write(&hdr, binary.LittleEndian, uint16(32))
	hdr.WriteString("data")
	binary.Write(&hdr, binary.LittleEndian, dataSize)

	if _, err := w.Write(hdr.Bytes()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, pcm); err != nil {
		return fmt.Errorf("write samples: %w", err)
	}
	return nil
}
