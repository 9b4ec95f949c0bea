// Package sound plays the alert tone for illegal robot actions.
package sound

import (
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
	"go.uber.org/zap"
)

const (
	sampleRate = beep.SampleRate(44100)

	alertFrequency = 880
	alertDuration  = 150 * time.Millisecond
	alertVolume    = 0.2
)

// Alert plays a short beep. Without a working audio device it stays silent.
type Alert struct {
	mu          sync.Mutex
	mixer       *beep.Mixer
	initialized bool
	logger      *zap.Logger
}

// NewAlert creates a silent alert; call Initialize to reach the speaker
func NewAlert(logger *zap.Logger) *Alert {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Alert{mixer: &beep.Mixer{}, logger: logger}
}

// Initialize opens the speaker. A failure is logged and leaves the alert
// silent.
func (a *Alert) Initialize() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		return
	}
	if err := speaker.Init(sampleRate, sampleRate.N(100*time.Millisecond)); err != nil {
		a.logger.Warn("audio unavailable, alerts are silent", zap.Error(err))
		return
	}
	speaker.Play(a.mixer)
	a.initialized = true
}

// Play queues one alert tone
func (a *Alert) Play() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return
	}
	speaker.Lock()
	a.mixer.Add(Tone(alertFrequency, alertDuration, alertVolume))
	speaker.Unlock()
}

// Close silences anything still queued
func (a *Alert) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return
	}
	speaker.Lock()
	a.mixer.Clear()
	speaker.Unlock()
	a.initialized = false
}

// tone is a sine wave of fixed length with a linear fade-out
type tone struct {
	freq     float64
	volume   float64
	position int
	length   int
}

// Tone returns a sine streamer of freq Hz lasting d
func Tone(freq float64, d time.Duration, volume float64) beep.Streamer {
	return &tone{freq: freq, volume: volume, length: sampleRate.N(d)}
}

func (t *tone) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		if t.position >= t.length {
			return i, i > 0
		}
		fade := 1 - float64(t.position)/float64(t.length)
		val := t.volume * fade * math.Sin(2*math.Pi*t.freq*float64(t.position)/float64(sampleRate))
		samples[i][0] = val
		samples[i][1] = val
		t.position++
	}
	return len(samples), true
}

func (t *tone) Err() error { return nil }
