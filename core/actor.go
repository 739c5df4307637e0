package core

// Actor is the authenticated caller's identity, threaded explicitly into
// every operation. The core trusts it unconditionally; establishing it is
// the session layer's job.
type Actor struct {
	Email   string
	IsAdmin bool
}
