package core

import "time"

// User is a read-only entry of the user directory.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasImage reports whether an avatar URL is set.
func (u User) HasImage() bool { return u.Image != "" }
