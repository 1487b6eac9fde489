package domain

import "time"

// Profile is the user-directory view this core consumes. Account management
// lives elsewhere; we only need the delivery-relevant fields.
type Profile struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"display_name"`
	PushAddress  string    `json:"push_address,omitempty"` // empty when the user never registered a push token
	Follows      []string  `json:"follows,omitempty"`
	Blocked      []string  `json:"blocked,omitempty"`
	LastActiveAt time.Time `json:"last_active_at"`
}
