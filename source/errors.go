package source

import "fmt"

// ConnectionError marks a transient connectivity failure. Drivers absorb
// these with their own backoff and only surface one once the budget is spent.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("source: %s: %v", e.Op, e.Err)
}
func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthError marks a credentials/authorization failure. Never retried.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("source: %s: not authorized: %v", e.Op, e.Err)
}
func (e *AuthError) Unwrap() error { return e.Err }

// AckError reports an acknowledge against an expired or unknown token.
// The message will simply be redelivered; callers log and count it.
type AckError struct {
	Token string
	Err   error
}

func (e *AckError) Error() string {
	tok := e.Token
	if len(tok) > 12 {
		tok = tok[:12] + "…"
	}
	return fmt.Sprintf("source: ack %s: %v", tok, e.Err)
}
func (e *AckError) Unwrap() error { return e.Err }
