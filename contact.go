package mimir

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Contact is a named address in a user's address book.
type Contact struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	Network   string    `json:"network,omitempty"`
	Address   Address   `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

func NewContact(user *User, name, network, address string) (*Contact, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("empty contact name")
	}

	addr, err := Decode(address)
	if err != nil {
		return nil, err
	}

	return &Contact{
		ID:        uuid.New(),
		UserID:    user.ID,
		Name:      name,
		Network:   network,
		Address:   addr,
		CreatedAt: time.Now(),
	}, nil
}
