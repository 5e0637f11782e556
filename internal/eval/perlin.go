package eval

import "math"

// Perlin1D is a small deterministic value-noise generator used by
// `$curve.perlin` (spec §4.6: "uses a standard value-noise generator seeded
// identically"). No pack repo carries a standalone Perlin/value-noise
// dependency (see DESIGN.md), so this is hand-rolled: a seeded hash lattice
// with cosine interpolation between integer lattice points, which is the
// textbook value-noise construction and needs no external library.
func Perlin1D(x float64, seed int64) float64 {
	x0 := math.Floor(x)
	x1 := x0 + 1
	t := x - x0

	v0 := latticeValue(int64(x0), seed)
	v1 := latticeValue(int64(x1), seed)

	ft := (1 - math.Cos(t*math.Pi)) * 0.5
	return v0*(1-ft) + v1*ft
}

// latticeValue hashes an integer lattice coordinate plus seed into [0,1]
// deterministically (same coordinate + seed always yields the same value).
func latticeValue(i, seed int64) float64 {
	h := uint64(i)*2654435761 ^ uint64(seed)*2246822519
	h ^= h >> 13
	h *= 3266489917
	h ^= h >> 16
	return float64(h%1_000_000) / 1_000_000.0
}
