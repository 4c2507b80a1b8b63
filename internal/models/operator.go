package models

// Operator is a dashboard user allowed to send commands.
type Operator struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // don’t expose hash
}
