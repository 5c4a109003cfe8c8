package session

import (
	"context"

	"go.uber.org/zap"
)

// Auth is the apiclient.AuthContext of one console session.
type Auth struct {
	store    Store
	id       string
	log      *zap.Logger
	onLogout func(id string)
}

// NewAuth binds a store to a session id. onLogout, if set, runs after a
// forced logout so callers can drop per-session state.
func NewAuth(store Store, id string, log *zap.Logger, onLogout func(id string)) *Auth {
	if log == nil {
		log = zap.NewNop()
	}
	return &Auth{store: store, id: id, log: log, onLogout: onLogout}
}

// Token returns the stored school API token.
func (a *Auth) Token(ctx context.Context) (string, error) {
	c, err := a.store.Load(ctx, a.id)
	if err != nil {
		return "", err
	}
	return c.Token, nil
}

// OnUnauthorized clears the stored credentials: the global logout.
func (a *Auth) OnUnauthorized(ctx context.Context) {
	if err := a.store.Clear(context.WithoutCancel(ctx), a.id); err != nil {
		a.log.Error("clear session after unauthorized", zap.String("session", a.id), zap.Error(err))
	}
	a.log.Info("session logged out", zap.String("session", a.id))
	if a.onLogout != nil {
		a.onLogout(a.id)
	}
}
