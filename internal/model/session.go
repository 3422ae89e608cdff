package model

import "time"

// SessionToken is minted exactly once per verified pairing code.
type SessionToken struct {
	ID       string    `json:"sessionId"`
	Number   string    `json:"number"`
	IssuedAt time.Time `json:"issuedAt"`
}
