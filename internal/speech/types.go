// Package speech turns text into temporary audio files through pluggable
// text-to-speech backends.
package speech

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"
)

var (
	ErrEmptyText       = errors.New("speech: empty text")
	ErrUnsupportedMode = errors.New("speech: unsupported mode")
	ErrNoDuration      = errors.New("speech: audio has no measurable duration")
)

// Gateway is the contract every backend satisfies.
type Gateway interface {
	Synthesize(ctx context.Context, text string) (*Asset, error)
}

// Named is implemented by backends that report an identifier; the cache uses
// it to namespace keys.
type Named interface {
	Name() string
}

// Fingerprinted is implemented by backends whose output depends on settings
// such as voice or model. The cache mixes the fingerprint into its keys so a
// settings change never serves audio produced under the old settings.
type Fingerprinted interface {
	Fingerprint() string
}

// Asset is a synthesized audio file on local disk. The file is temporary and
// must be released by whoever owns the asset.
type Asset struct {
	Path     string
	Format   string
	Duration time.Duration
	Backend  string

	once       sync.Once
	releaseErr error
}

// Seconds reports the duration as float seconds.
func (a *Asset) Seconds() float64 {
	if a == nil {
		return 0
	}
	return a.Duration.Seconds()
}

// Release deletes the audio file. It is safe to call more than once.
func (a *Asset) Release() error {
	if a == nil {
		return nil
	}
	a.once.Do(func() {
		if a.Path == "" {
			return
		}
		if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
			a.releaseErr = err
		}
	})
	return a.releaseErr
}

// Probe measures the duration of an audio file.
type Probe func(ctx context.Context, path string) (time.Duration, error)
