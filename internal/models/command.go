package models

// Command is an outbound instruction for one node. Nil fields are left out of the frame.
type Command struct {
	Target string `json:"target" binding:"required"`
	Relay  *bool  `json:"relay,omitempty"`
	Auto   *bool  `json:"auto,omitempty"`
}
