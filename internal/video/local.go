package video

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"medvision-server/internal/models"
)

// LocalProvisioner builds room links under a fixed base URL without calling
// any provider. It is used when no video API key is configured.
type LocalProvisioner struct {
	baseURL string
}

// NewLocalProvisioner creates a provisioner rooted at baseURL.
func NewLocalProvisioner(baseURL string) *LocalProvisioner {
	return &LocalProvisioner{baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *LocalProvisioner) CreateRoom(_ context.Context, name string) (*Room, error) {
	return &Room{Name: name, URL: p.baseURL + "/" + name}, nil
}

func (p *LocalProvisioner) DeleteRoom(context.Context, string) error {
	return nil
}

func (p *LocalProvisioner) AccessToken(context.Context, string, string, models.Role, TokenOptions) (string, error) {
	return uuid.NewString(), nil
}
