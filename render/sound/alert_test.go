package sound

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToneLength(t *testing.T) {
	s := Tone(440, 10*time.Millisecond, 0.5)
	want := sampleRate.N(10 * time.Millisecond)

	buf := make([][2]float64, 128)
	total := 0
	for {
		n, ok := s.Stream(buf)
		total += n
		if !ok {
			break
		}
	}
	assert.Equal(t, want, total)

	n, ok := s.Stream(buf)
	assert.Zero(t, n)
	assert.False(t, ok, "drained tone stays drained")
}

func TestToneAmplitude(t *testing.T) {
	s := Tone(440, 20*time.Millisecond, 0.25)
	buf := make([][2]float64, sampleRate.N(20*time.Millisecond))
	s.Stream(buf)

	peak := 0.0
	for _, frame := range buf {
		assert.Equal(t, frame[0], frame[1], "mono tone")
		peak = math.Max(peak, math.Abs(frame[0]))
	}
	assert.LessOrEqual(t, peak, 0.25)
	assert.Greater(t, peak, 0.1)
	assert.Zero(t, buf[0][0], "starts at a zero crossing")
}

func TestUninitializedAlertIsSilent(t *testing.T) {
	a := NewAlert(nil)
	a.Play()
	a.Close()
}
