package authflow

import "context"

type deviceContextKey struct{}
type sessionContextKey struct{}

// WithDevice attaches client device metadata to ctx. Tokens issued under ctx
// record it.
func WithDevice(ctx context.Context, d Device) context.Context {
	return context.WithValue(ctx, deviceContextKey{}, d)
}

func deviceFromContext(ctx context.Context) Device {
	if ctx == nil {
		return Device{}
	}

	d, _ := ctx.Value(deviceContextKey{}).(Device)
	return d
}

// WithSession attaches a validated session to ctx. The middleware package
// stores the bearer session here.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// SessionFromContext returns the session stored by WithSession.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}

	s, ok := ctx.Value(sessionContextKey{}).(*Session)
	return s, ok && s != nil
}
