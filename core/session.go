// Package core provides the building blocks of the smartrecord engine.
// This file defines session scoping: context propagation for sessions
// that span multiple calls, and the ergonomic transactional wrapper.
package core

import "context"

// sessionKey is an unexported type used as the key for storing a
// Session in a context.Context. Using a private type prevents
// collisions with other context values.
type sessionKey struct{}

// WithSession injects a Session into the given context.
//
// Engine calls detect and reuse a context session instead of acquiring
// their own; the session's owner keeps responsibility for committing or
// rolling it back.
func WithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// SessionFrom extracts a Session from the given context, if any.
//
// Returns nil if the context does not carry a session.
func SessionFrom(ctx context.Context) Session {
	if v, ok := ctx.Value(sessionKey{}).(Session); ok {
		return v
	}
	return nil
}

// SessionFunc is the callback signature used by RunSession.
//
// If the function returns an error, the session is rolled back.
// If it returns nil, the session is committed.
type SessionFunc func(ctx context.Context) error

// RunSession executes a function inside one session spanning every
// engine call made with the derived context, committing on success and
// rolling back on error. This is how a caller imposes ordering across
// multiple operations that would otherwise each own their own session.
//
// Example:
//
//	err := core.RunSession(ctx, driver, func(ctx context.Context) error {
//		if err := users.Save(ctx, &user); err != nil {
//			return err
//		}
//		return posts.Save(ctx, &post)
//	})
func RunSession(ctx context.Context, driver Driver, fn SessionFunc) error {
	session, err := driver.Session(ctx)
	if err != nil {
		return err
	}
	sessionCtx := WithSession(ctx, session)

	if err := fn(sessionCtx); err != nil {
		_ = session.Rollback(ctx) // roll back on error, release either way
		return err
	}
	if err := session.Commit(ctx); err != nil {
		return &ExecutionError{Op: "commit", Err: err, Timeout: isTimeout(err)}
	}
	return nil
}

// scoped runs fn within a session. A session already present on the
// context is reused and left open for its owner. Otherwise a session is
// acquired from the driver and released on every exit path: committed
// on success, rolled back on error or panic before the failure
// propagates. Cancellation of a pending call lands here as an error
// from fn and takes the rollback path.
func scoped(ctx context.Context, driver Driver, fn func(Session) error) (err error) {
	if session := SessionFrom(ctx); session != nil {
		return fn(session)
	}

	session, err := driver.Session(ctx)
	if err != nil {
		return &ExecutionError{Op: "session", Err: err, Timeout: isTimeout(err)}
	}

	defer func() {
		if r := recover(); r != nil {
			_ = session.Rollback(ctx)
			panic(r)
		}
	}()

	if err = fn(session); err != nil {
		_ = session.Rollback(ctx)
		return err
	}
	if err = session.Commit(ctx); err != nil {
		return &ExecutionError{Op: "commit", Err: err, Timeout: isTimeout(err)}
	}
	return nil
}
