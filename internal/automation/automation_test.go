package automation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampleAtInterpolatesLinear(t *testing.T) {
	a := New("s", "volume", Global, []Keypoint{{0, 0}, {1, 1}}, "linear", 1)
	assert.InDelta(t, 0.5, a.SampleAt(0.5), 1e-9)
	assert.Equal(t, 0.0, a.SampleAt(0))
	assert.Equal(t, 1.0, a.SampleAt(1))
}

func TestSampleAtClampsOutsideRange(t *testing.T) {
	a := New("s", "volume", Global, []Keypoint{{0.2, 0.1}, {0.8, 0.9}}, "linear", 1)
	assert.Equal(t, 0.1, a.SampleAt(0))
	assert.Equal(t, 0.9, a.SampleAt(1))
}

func TestSampleAtSortsKeypoints(t *testing.T) {
	a := New("s", "volume", Global, []Keypoint{{1, 1}, {0, 0}, {0.5, 0.5}}, "linear", 1)
	require := assert.New(t)
	require.Equal(0.0, a.Keypoints[0].Fraction)
	require.Equal(0.5, a.Keypoints[1].Fraction)
	require.Equal(1.0, a.Keypoints[2].Fraction)
}

func TestSampleAtMultiSegmentBracket(t *testing.T) {
	a := New("s", "cutoff", Global, []Keypoint{{0, 200}, {0.5, 800}, {1, 200}}, "linear", 1)
	assert.InDelta(t, 800.0, a.SampleAt(0.5), 1e-9)
	mid := a.SampleAt(0.25)
	assert.Greater(t, mid, 200.0)
	assert.Less(t, mid, 800.0)
}

func TestRandomCurveDeterministic(t *testing.T) {
	a := New("s", "p", Global, []Keypoint{{0, 0}, {1, 1}}, "random", 99)
	a.EventIdx = 3
	v1 := a.SampleAt(0.5)
	v2 := a.SampleAt(0.5)
	assert.Equal(t, v1, v2)
}

func TestLFOSineRange(t *testing.T) {
	l := &LFO{RatePerBeat: 1, Depth: 2, Shape: "sine"}
	for _, b := range []float64{0, 0.25, 0.5, 0.75, 1, 3.3} {
		v := l.At(b)
		assert.LessOrEqual(t, v, 2.0001)
		assert.GreaterOrEqual(t, v, -2.0001)
	}
}

func TestLFOTriBounds(t *testing.T) {
	l := &LFO{RatePerBeat: 2, Depth: 1, Shape: "tri"}
	v := l.At(0)
	assert.LessOrEqual(t, v, 1.0001)
	assert.GreaterOrEqual(t, v, -1.0001)
}
