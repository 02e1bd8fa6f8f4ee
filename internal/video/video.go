// Package video provisions consultation rooms with an external video provider.
package video

import (
	"context"
	"time"

	"medvision-server/internal/models"
)

// DefaultTokenTTL is the lifetime of a room access token when none is given.
const DefaultTokenTTL = time.Hour

// Room is a provisioned video room.
type Room struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// TokenOptions tunes a room access token.
type TokenOptions struct {
	UserName string
	TTL      time.Duration
}

// Provisioner creates video rooms and grants access to them.
type Provisioner interface {
	CreateRoom(ctx context.Context, name string) (*Room, error)
	DeleteRoom(ctx context.Context, name string) error
	AccessToken(ctx context.Context, roomName, userID string, role models.Role, opts TokenOptions) (string, error)
}

// IsOwner reports whether role moderates the room.
func IsOwner(role models.Role) bool {
	return role == models.RoleDoctor || role == models.RoleAdmin
}

func (o TokenOptions) withDefaults() TokenOptions {
	if o.TTL <= 0 {
		o.TTL = DefaultTokenTTL
	}
	if o.UserName == "" {
		o.UserName = "Usuário"
	}
	return o
}
