package model

import "time"

// PairingCode is a live entry in the pairing store. A code is valid for
// verification only while it is unconsumed and younger than the store TTL.
type PairingCode struct {
	Code      string    `json:"code"`
	Number    string    `json:"number"`
	CreatedAt time.Time `json:"createdAt"`
	Consumed  bool      `json:"consumed"`
}
