package model

import "time"

// PageView is a single anonymised page hit reported by the frontend beacon.
type PageView struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	VisitorKey string    `json:"visitor_key"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Referrer   string    `json:"referrer,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
