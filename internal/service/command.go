package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"sensor_gateway/internal/framing"
	"sensor_gateway/internal/logger"
	"sensor_gateway/internal/models"
)

// CommandService writes framed commands to whichever transport is currently attached.
// Commands are fire-and-forget: nothing correlates them with later acks.
type CommandService struct {
	mu  sync.Mutex
	w   io.Writer
	log *logger.Logger
}

func NewCommandService(log *logger.Logger) *CommandService {
	return &CommandService{log: log}
}

var _ Commander = (*CommandService)(nil)

// Attach makes w the destination of subsequent commands.
func (s *CommandService) Attach(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}

// Detach drops the current destination; Send fails until the next Attach.
func (s *CommandService) Detach() {
	s.mu.Lock()
	s.w = nil
	s.mu.Unlock()
}

// Connected reports whether a transport is attached.
func (s *CommandService) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w != nil
}

// Send encodes cmd and writes it in a single call. Write errors are returned, not retried.
func (s *CommandService) Send(_ context.Context, cmd models.Command) error {
	cmd.Target = strings.TrimSpace(cmd.Target)
	if cmd.Target == "" {
		return fmt.Errorf("%w: target node id is required", ErrValidation)
	}
	frame, err := framing.EncodeCommand(cmd)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return ErrTransportUnavailable
	}
	if _, err := s.w.Write(frame); err != nil {
		if s.log != nil {
			s.log.Errorw("command_write_failed", "target", cmd.Target, "err", err)
		}
		return fmt.Errorf("write command to %s: %w", cmd.Target, err)
	}

	if s.log != nil {
		s.log.Infow("command_sent", "target", cmd.Target, "relay", cmd.Relay, "auto", cmd.Auto)
	}
	return nil
}
