package mimir

import (
	"github.com/google/uuid"
)

var userNamespace = uuid.MustParse("b4d3e9a2-1c7f-4f0e-a6d5-3e2b9c8f7a61")

// User is the subject of a verified access token.
type User struct {
	ID      uuid.UUID `json:"id"`
	Subject string    `json:"subject"`
}

func NewUser(subject string) *User {
	return &User{
		ID:      uuid.NewSHA1(userNamespace, []byte(subject)),
		Subject: subject,
	}
}
