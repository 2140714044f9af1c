package auth

import "context"

// TokenLogin logs into a service with a token the user already pasted. It
// is the Authenticator used to recover a subscription that failed for a
// missing login.
type TokenLogin struct {
	Session *Session
	Token   string
}

func (t TokenLogin) Login(ctx context.Context, service string) error {
	return t.Session.Login(ctx, service, t.Token)
}

func (t TokenLogin) IsLoggedIn(ctx context.Context, service string) (bool, error) {
	return t.Session.IsLoggedIn(ctx, service)
}
