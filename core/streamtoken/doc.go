// Package streamtoken issues and consumes short-lived, single-use credentials
// that authorize opening a streaming connection.
//
// A stream credential is separate from the long-lived session credential: the
// client asks for one with its normal session, receives it in an HttpOnly
// cookie scoped to the streaming path, and spends it when the stream opens.
//
// # Lifecycle
//
// A credential moves from Unused to Consumed exactly once:
//
//	cred, err := issuer.Issue(ctx, userID)
//	// cred.Token goes into a cookie, never into a body or URL
//
//	userID, err := issuer.Consume(ctx, token)
//	switch {
//	case errors.Is(err, streamtoken.ErrNotFound):
//	case errors.Is(err, streamtoken.ErrExpired):
//	case errors.Is(err, streamtoken.ErrAlreadyConsumed):
//	}
//
// Issue invalidates every unconsumed credential of the same purpose for the
// user before inserting the new one, so at most one usable credential exists
// per (user, purpose). When the Store implements Transactor both steps run in
// one transaction.
//
// Consume is a compare-and-set on the consumed-at field: of two concurrent
// attempts with the same token exactly one succeeds.
//
// # Storage
//
// Tokens are never stored in plain text. Stores receive the blake2b-256 hex
// digest of the token and look credentials up by that digest.
//
// MemoryStore keeps credentials in process memory and can purge expired
// entries in the background (Start / Stop). Postgres and Redis stores live in
// integration/streamtoken.
package streamtoken
