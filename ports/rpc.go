package ports

import "context"

// Caller executes named RPC calls against the backend. Session continuity is
// the transport's concern (cookies); this layer only sees the call contract.
type Caller interface {
	// Call invokes method with positional params and unmarshals the result.
	// A non-2xx response or an RPC-level error envelope is returned as an
	// error carrying the status or code.
	Call(ctx context.Context, method string, params []any, result any) error

	// ClearCredentials wipes any transport-level session credentials so a
	// cleared session cannot be resumed by cookie replay.
	ClearCredentials()
}
