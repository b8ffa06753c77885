package types

import "time"

// Project is one workspace directory served by the runtime. The runtime
// namespaces sessions by directory, so the directory doubles as the
// project half of every session key.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Directory string    `json:"directory"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
