// Package sampleprovider implements the sample provider interface from
// spec §6: given a sample URI, return decoded PCM. The filesystem/bank
// implementation here decodes WAV files the same way the teacher's
// getbpm.Length reads header fields before touching PCM data, but goes one
// step further and actually decodes samples via go-audio/wav + go-audio/audio
// (the teacher only needed duration, not samples, since its own playback was
// delegated to SuperCollider over OSC).
package sampleprovider

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/go-audio/wav"
)

// Sample is decoded PCM plus its native format, matching spec §6's
// `{sample_rate_hz, channels, pcm: f32[]}` contract.
type Sample struct {
	SampleRate int
	Channels   int
	PCM        []float32 // interleaved
}

// Provider resolves a sample URI to decoded PCM. `devalang://bank/<fullname>/<relpath>`
// URIs are resolved against registered bank roots; `file://...` URIs (from
// `@load`) are resolved directly.
type Provider struct {
	mu        sync.RWMutex
	cache     map[string]*Sample
	bankRoots map[string]string // bank fullname -> filesystem root
}

// New creates an empty Provider. RegisterBankRoot must be called for every
// bank fullname that will be dereferenced via a `devalang://bank/...` URI.
func New() *Provider {
	return &Provider{cache: make(map[string]*Sample), bankRoots: make(map[string]string)}
}

// RegisterBankRoot binds a bank's fullname (`publisher.name`) to the
// filesystem directory its sample files live under. The bank registry is a
// process-wide read-mostly map per spec §5/§9; registration is rare
// relative to lookup, so it takes the write lock only briefly.
func (p *Provider) RegisterBankRoot(fullname, root string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bankRoots[fullname] = root
}

// Resolve fetches and decodes the sample at uri, lazily and once (spec
// §4.3: "the sample's PCM is fetched lazily on first use").
func (p *Provider) Resolve(uri string) (*Sample, error) {
	p.mu.RLock()
	if s, ok := p.cache[uri]; ok {
		p.mu.RUnlock()
		return s, nil
	}
	p.mu.RUnlock()

	path, err := p.pathForURI(uri)
	if err != nil {
		return nil, err
	}
	s, err := decodeWAV(path)
	if err != nil {
		return nil, fmt.Errorf("decode sample %q: %w", uri, err)
	}

	p.mu.Lock()
	p.cache[uri] = s
	p.mu.Unlock()
	return s, nil
}

func (p *Provider) pathForURI(uri string) (string, error) {
	switch {
	case strings.HasPrefix(uri, "file://"):
		return strings.TrimPrefix(uri, "file://"), nil
	case strings.HasPrefix(uri, "devalang://bank/"):
		rest := strings.TrimPrefix(uri, "devalang://bank/")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 {
			return "", fmt.Errorf("malformed bank sample uri %q", uri)
		}
		fullname, relpath := parts[0], parts[1]
		p.mu.RLock()
		root, ok := p.bankRoots[fullname]
		p.mu.RUnlock()
		if !ok {
			return "", fmt.Errorf("bank %q is not registered", fullname)
		}
		return root + "/" + relpath, nil
	default:
		return "", fmt.Errorf("unsupported sample uri scheme: %q", uri)
	}
}

// decodeWAV reads a WAV file into interleaved f32 PCM: wav.NewDecoder and
// IsValidFile check the header, FullPCMBuffer decodes the PCM chunk, and
// the go-audio/audio Float32Buffer conversion yields f32 samples.
func decodeWAV(path string) (*Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read PCM: %w", err)
	}
	fbuf := buf.AsFloat32Buffer()

	return &Sample{
		SampleRate: fbuf.Format.SampleRate,
		Channels:   fbuf.Format.NumChannels,
		PCM:        fbuf.Data,
	}, nil
}
