// Package auth provides the gateway request credentials.
//
// It intentionally avoids token storage and refresh concerns; the hosting
// web portal hands the user a session id, and this package only carries it.
package auth

import (
	"errors"
	"os"
	"strings"
)

const (
	EnvSessionID = "PORTALCTL_SESSION_ID"
	EnvTenancy   = "PORTALCTL_TENANCY"

	// DefaultTenancy is the production tenancy the web portal uses.
	DefaultTenancy = "prod_default-prod_default-common"
)

var (
	ErrMissingSession = errors.New("auth: gateway session id required")
	ErrMissingTenancy = errors.New("auth: tenancy id required")
)

// Credentials identify one portal session against the gateway.
type Credentials struct {
	Tenancy   string
	SessionID string
}

func (c Credentials) Validate() error {
	if strings.TrimSpace(c.SessionID) == "" {
		return ErrMissingSession
	}
	if strings.TrimSpace(c.Tenancy) == "" {
		return ErrMissingTenancy
	}
	return nil
}

// FromEnv reads credentials from the environment, falling back to the
// default tenancy.
func FromEnv() Credentials {
	c := Credentials{
		Tenancy:   strings.TrimSpace(os.Getenv(EnvTenancy)),
		SessionID: strings.TrimSpace(os.Getenv(EnvSessionID)),
	}
	if c.Tenancy == "" {
		c.Tenancy = DefaultTenancy
	}
	return c
}
