package models

import "time"

type User struct {
	ID       int64
	Email    string
	Name     string
	PassHash []byte
}

// FirstName returns the part of the display name before the first space.
func (u User) FirstName() string {
	for i, r := range u.Name {
		if r == ' ' {
			return u.Name[:i]
		}
	}
	return u.Name
}

type Client struct {
	ID        int64
	Name      string
	Email     string
	Phone     string
	OwnerID   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	Email   string `json:"to"`
	Name    string `json:"name"`
	Purpose string `json:"purpose"`
}
