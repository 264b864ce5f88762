package flows

import "context"

// Service is the centralized flow runner built once by the root client.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.SessionSync.FetchToken != nil && s.deps.Reset.Navigate != nil
}

func (s Service) SessionSignIn(ctx context.Context, p SyncPrincipal) (SyncOutcome, error) {
	return RunSessionSignIn(ctx, p, s.deps.SessionSync)
}

func (s Service) SessionSignOut(ctx context.Context) (SyncOutcome, error) {
	return RunSessionSignOut(ctx, s.deps.SessionSync)
}

func (s Service) ResetEmail(ctx context.Context, email string) (ResetResult, error) {
	return RunResetEmail(ctx, email, s.deps.Reset)
}

func (s Service) ResetPhone(ctx context.Context, phone string) (ResetResult, error) {
	return RunResetPhone(ctx, phone, s.deps.Reset)
}

func (s Service) NavigateLogin(ctx context.Context) error {
	return RunNavigateLogin(ctx, s.deps.Reset)
}
