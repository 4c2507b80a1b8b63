package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"sensor_gateway/internal/framing"
	"sensor_gateway/internal/logger"
	"sensor_gateway/internal/models"
	"sensor_gateway/internal/store"
	"sensor_gateway/internal/transport"
)

const (
	defaultReadBuffer        = 256
	defaultReconnectInterval = 5 * time.Second
)

// IngestOptions tunes the read loop and the frame decoder.
type IngestOptions struct {
	ReadBuffer        int
	ReconnectInterval time.Duration
	MaxFrameBytes     int
	LegacyJSON        bool
	SinkQueue         int
}

// IngestService is the single owner of the transport reader and the frame
// decoder. Decoded readings go to the store, then to the sinks.
type IngestService struct {
	opener   transport.Opener
	store    *store.Store
	commands *CommandService
	sinks    []*asyncSink
	opts     IngestOptions
	log      *logger.Logger
}

func NewIngestService(opener transport.Opener, st *store.Store, commands *CommandService, sinks []Sink, opts IngestOptions, log *logger.Logger) *IngestService {
	if opts.ReadBuffer <= 0 {
		opts.ReadBuffer = defaultReadBuffer
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = defaultReconnectInterval
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = framing.DefaultMaxFrameBytes
	}
	s := &IngestService{opener: opener, store: st, commands: commands, opts: opts, log: log}
	for _, sink := range sinks {
		s.sinks = append(s.sinks, newAsyncSink(sink, opts.SinkQueue, log))
	}
	return s
}

var _ Ingest = (*IngestService)(nil)

// Run opens the transport, consumes it until it fails, and reopens it after
// ReconnectInterval. It returns when ctx is cancelled, after the sink workers exit.
func (s *IngestService) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, sink := range s.sinks {
		wg.Add(1)
		go func(a *asyncSink) {
			defer wg.Done()
			a.Run(ctx)
		}(sink)
	}
	defer wg.Wait()

	for {
		if err := s.session(ctx); err != nil && ctx.Err() == nil && s.log != nil {
			s.log.Warnw("transport_lost", "err", err, "retry_in", s.opts.ReconnectInterval)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.opts.ReconnectInterval):
		}
	}
}

// session runs one open/read/close cycle.
func (s *IngestService) session(ctx context.Context) error {
	if s.opener == nil {
		return errors.New("no transport configured")
	}
	conn, err := s.opener.Open(ctx)
	if err != nil {
		return err
	}
	if s.log != nil {
		s.log.Infow("transport_opened")
	}

	if s.commands != nil {
		s.commands.Attach(conn)
		defer s.commands.Detach()
	}

	// Close unblocks the pending Read when ctx ends.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = conn.Close()
	}()

	return s.Consume(ctx, conn)
}

// Consume decodes r until it returns an error. io.EOF is reported as an error
// because a radio link is not expected to end.
func (s *IngestService) Consume(ctx context.Context, r io.Reader) error {
	dec := framing.NewDecoder(
		framing.WithMaxFrameBytes(s.opts.MaxFrameBytes),
		framing.WithLegacyJSON(s.opts.LegacyJSON),
	)
	buf := make([]byte, s.opts.ReadBuffer)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.handleChunk(ctx, dec, buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *IngestService) handleChunk(_ context.Context, dec *framing.Decoder, chunk []byte) {
	readings, errs := dec.Feed(chunk)
	for _, err := range errs {
		if s.log != nil {
			s.log.Warnw("frame_decode_failed", "err", err)
		}
	}
	for _, r := range readings {
		s.Ingest(r)
	}
}

// Ingest stores one decoded reading and hands the stored copy to every sink.
func (s *IngestService) Ingest(r models.Reading) models.Reading {
	stored := s.store.Apply(r)
	if s.log != nil {
		s.logReading(stored)
	}
	for _, sink := range s.sinks {
		sink.Offer(stored)
	}
	return stored
}

func (s *IngestService) logReading(r models.Reading) {
	fields := []any{"node", r.ID, "relay", r.Relay, "manual", r.Manual}
	if r.DualSensor() {
		fields = append(fields, "temp1", r.Temp1, "hum1", r.Hum1, "temp2", r.Temp2, "hum2", r.Hum2)
	}
	if r.HasClimate() {
		fields = append(fields, "temp", *r.Temp, "hum", *r.Hum)
	}
	s.log.Debugw("reading_received", fields...)
	if r.IsAck() {
		s.log.Infow("command_ack", "node", r.ID, "relay", r.Relay)
	}
}
