package dsp

import "math"

// Quality names a resampling tap count, per spec §4.7/§6's
// `sinc8|sinc16|sinc24|sinc32` option (taps = quality, Kaiser-windowed,
// zero-phase).
type Quality int

const (
	Sinc8 Quality = 8
	Sinc16 Quality = 16
	Sinc24 Quality = 24
	Sinc32 Quality = 32
)

// ParseQuality maps a config string to a Quality, defaulting to Sinc16.
func ParseQuality(s string) Quality {
	switch s {
	case "sinc8":
		return Sinc8
	case "sinc24":
		return Sinc24
	case "sinc32":
		return Sinc32
	default:
		return Sinc16
	}
}

// sinc is the normalized sinc function sin(pi*x)/(pi*x), sinc(0) = 1.
func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// kaiser evaluates a Kaiser window of the given beta at sample index i of n
// taps (i in [0, n-1]), via the standard I0 Bessel-function series.
func kaiser(i, n int, beta float64) float64 {
	alpha := float64(n-1) / 2
	x := (float64(i) - alpha) / alpha
	arg := beta * math.Sqrt(math.Max(0, 1-x*x))
	return besselI0(arg) / besselI0(beta)
}

func besselI0(x float64) float64 {
	sum := 1.0
	term := 1.0
	halfX := x / 2
	for k := 1; k < 25; k++ {
		term *= (halfX * halfX) / float64(k*k)
		sum += term
	}
	return sum
}

// Resample converts mono PCM at srcRate to dstRate using a windowed-sinc
// kernel with `taps` = int(quality), the zero-phase construction named in
// spec §4.7.
func Resample(src []float32, srcRate, dstRate float64, quality Quality) []float32 {
	if srcRate == dstRate || len(src) == 0 {
		out := make([]float32, len(src))
		copy(out, src)
		return out
	}
	ratio := dstRate / srcRate
	n := int(float64(len(src)) * ratio)
	out := make([]float32, n)
	taps := int(quality)
	half := taps / 2
	beta := 8.0 // Kaiser beta tuned for ~60dB stopband attenuation at these tap counts

	for i := 0; i < n; i++ {
		srcPos := float64(i) / ratio
		center := int(math.Floor(srcPos))
		var acc float64
		var norm float64
		for k := -half; k < half; k++ {
			idx := center + k
			if idx < 0 || idx >= len(src) {
				continue
			}
			d := srcPos - float64(idx)
			w := kaiser(k+half, taps, beta)
			s := sinc(d) * w
			acc += float64(src[idx]) * s
			norm += s
		}
		if norm != 0 {
			acc /= math.Max(norm, 1e-9)
		}
		out[i] = float32(acc)
	}
	return out
}
