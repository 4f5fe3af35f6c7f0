package server

import (
	"context"

	"github.com/disasterlens/civicguard/internal/model"
)

type contextKey int

const (
	ctxKeyProfile contextKey = iota
	ctxKeyRequestID
)

func withProfile(ctx context.Context, profile *model.UserProfile) context.Context {
	return context.WithValue(ctx, ctxKeyProfile, profile)
}

// ProfileFromContext returns the active profile from the context, or nil.
func ProfileFromContext(ctx context.Context) *model.UserProfile {
	p, _ := ctx.Value(ctxKeyProfile).(*model.UserProfile)
	return p
}
