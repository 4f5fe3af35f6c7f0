// Package session issues and tracks the single active user profile.
package session

import (
	"context"
	"fmt"

	"github.com/disasterlens/civicguard/internal/cgerr"
	"github.com/disasterlens/civicguard/internal/model"
	"github.com/disasterlens/civicguard/internal/store"
	"github.com/google/uuid"
)

const (
	defaultCitizenEmail = "citizen@civicguard.org"

	adminDisplayName   = "Strategic Ops Commander"
	citizenDisplayName = "Civic Participant"
	guestDisplayName   = "Guest Reporter"
)

// Provider issues lightweight profiles and persists the current session.
// Roles are fixed at issuance; there is no in-session promotion and no
// multi-session support.
type Provider struct {
	store store.Store
}

// NewProvider creates a Provider over the given store.
func NewProvider(st store.Store) *Provider {
	return &Provider{store: st}
}

// Issue creates a profile for the given role and persists it as the single
// current session, replacing any prior one. ADMIN requires an email on the
// allow-list; CITIZEN defaults its email when none is given; GUEST carries
// no email.
func (p *Provider) Issue(ctx context.Context, role model.Role, email string) (*model.UserProfile, error) {
	var profile *model.UserProfile

	switch role {
	case model.RoleAdmin:
		if email == "" {
			email = model.AdminAllowList[0]
		}
		if !model.AllowedAdmin(email) {
			return nil, &cgerr.AuthorizationError{Email: email}
		}
		profile = &model.UserProfile{
			UID:         "uid-admin-" + shortID(),
			Email:       email,
			DisplayName: adminDisplayName,
			Role:        model.RoleAdmin,
		}
	case model.RoleCitizen:
		if email == "" {
			email = defaultCitizenEmail
		}
		profile = &model.UserProfile{
			UID:         "uid-citizen-" + shortID(),
			Email:       email,
			DisplayName: citizenDisplayName,
			Role:        model.RoleCitizen,
		}
	case model.RoleGuest:
		profile = &model.UserProfile{
			UID:         "guest-" + shortID(),
			DisplayName: guestDisplayName,
			Role:        model.RoleGuest,
		}
	default:
		return nil, &cgerr.ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", role)}
	}

	if err := p.store.PutSession(ctx, profile); err != nil {
		return nil, &cgerr.TransportError{Op: "persist session", Err: err}
	}
	return profile, nil
}

// Current returns the active profile, or nil when nobody is signed in.
func (p *Provider) Current(ctx context.Context) (*model.UserProfile, error) {
	profile, err := p.store.GetSession(ctx)
	if err != nil {
		return nil, &cgerr.TransportError{Op: "load session", Err: err}
	}
	return profile, nil
}

// Clear drops the current session.
func (p *Provider) Clear(ctx context.Context) error {
	if err := p.store.ClearSession(ctx); err != nil {
		return &cgerr.TransportError{Op: "clear session", Err: err}
	}
	return nil
}

func shortID() string {
	return uuid.NewString()[:5]
}
