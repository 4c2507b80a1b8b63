package framing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"sensor_gateway/internal/models"
)

var ErrMissingTarget = errors.New("command target is required")

// EncodeCommand renders cmd as an outbound frame: '<' + JSON + '>' + "\n".
// encoding/json escapes '<' and '>' inside strings, so the frame is always well-formed.
func EncodeCommand(cmd models.Command) ([]byte, error) {
	if strings.TrimSpace(cmd.Target) == "" {
		return nil, ErrMissingTarget
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode command for %q: %w", cmd.Target, err)
	}
	frame := make([]byte, 0, len(payload)+3)
	frame = append(frame, frameStart)
	frame = append(frame, payload...)
	frame = append(frame, frameEnd, '\n')
	return frame, nil
}
