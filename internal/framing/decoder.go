// Package framing implements the `<json>` wire protocol spoken by the sensor nodes.
package framing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"sensor_gateway/internal/models"
)

const (
	frameStart = '<'
	frameEnd   = '>'

	// DefaultMaxFrameBytes bounds a single payload on a noisy line.
	DefaultMaxFrameBytes = 4096
)

var (
	ErrMissingID     = errors.New("frame payload has no node id")
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

// Decoder reassembles readings from an arbitrarily chunked byte stream.
// It keeps state between Feed calls and must be driven by a single goroutine.
type Decoder struct {
	inFrame      bool
	buf          []byte
	maxFrame     int
	legacyJSON   bool
	sawDelimiter bool
}

// Option tweaks a Decoder.
type Option func(*Decoder)

// WithMaxFrameBytes sets the largest payload accepted between delimiters.
func WithMaxFrameBytes(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxFrame = n
		}
	}
}

// WithLegacyJSON enables decoding of unframed `{...}` chunks for as long as the
// stream has never carried a frame delimiter.
func WithLegacyJSON(enabled bool) Option {
	return func(d *Decoder) { d.legacyJSON = enabled }
}

// NewDecoder returns a decoder in the outside-frame state.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{maxFrame: DefaultMaxFrameBytes}
	for _, opt := range opts {
		opt(d)
	}
	d.buf = make([]byte, 0, 256)
	return d
}

// Feed consumes one chunk and returns the readings it completed, in stream order,
// together with the errors of frames that had to be discarded.
func (d *Decoder) Feed(chunk []byte) ([]models.Reading, []error) {
	var (
		out  []models.Reading
		errs []error
	)
	for _, b := range chunk {
		switch {
		case b == '\r' || b == '\n':
			continue
		case b == frameStart:
			d.sawDelimiter = true
			d.inFrame = true
			d.buf = d.buf[:0]
		case b == frameEnd:
			d.sawDelimiter = true
			if !d.inFrame {
				continue
			}
			if len(d.buf) > 0 {
				r, err := DecodeReading(d.buf)
				if err != nil {
					errs = append(errs, err)
				} else {
					out = append(out, r)
				}
			}
			d.reset()
		case d.inFrame:
			if len(d.buf) >= d.maxFrame {
				errs = append(errs, fmt.Errorf("%w: more than %d bytes", ErrFrameTooLarge, d.maxFrame))
				d.reset()
				continue
			}
			d.buf = append(d.buf, b)
		}
	}

	if d.legacyJSON && !d.sawDelimiter {
		if payload, ok := bareJSON(chunk); ok {
			if r, err := DecodeReading(payload); err == nil {
				out = append(out, r)
			}
		}
	}
	return out, errs
}

// InFrame reports whether the decoder is between an opening and a closing delimiter.
func (d *Decoder) InFrame() bool { return d.inFrame }

// Buffered returns the number of payload bytes waiting for a closing delimiter.
func (d *Decoder) Buffered() int { return len(d.buf) }

func (d *Decoder) reset() {
	d.inFrame = false
	d.buf = d.buf[:0]
}

// bareJSON returns the trimmed chunk when it looks like one unframed JSON object.
func bareJSON(chunk []byte) ([]byte, bool) {
	trimmed := bytes.TrimSpace(chunk)
	if len(trimmed) < 2 || trimmed[0] != '{' || trimmed[len(trimmed)-1] != '}' {
		return nil, false
	}
	if bytes.IndexByte(trimmed, frameStart) >= 0 || bytes.IndexByte(trimmed, frameEnd) >= 0 {
		return nil, false
	}
	return trimmed, true
}

// DecodeReading parses one payload into a Reading. The payload must be a JSON
// object with a non-empty string "id".
func DecodeReading(payload []byte) (models.Reading, error) {
	var r models.Reading
	if err := json.Unmarshal(payload, &r); err != nil {
		return models.Reading{}, fmt.Errorf("decode frame %q: %w", truncate(payload, 100), err)
	}
	if r.ID == "" {
		return models.Reading{}, fmt.Errorf("decode frame %q: %w", truncate(payload, 100), ErrMissingID)
	}
	return r, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
