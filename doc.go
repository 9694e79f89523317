// Package auth provides authentication primitives (credential hashing, JWT
// issuance with kind-scoped secrets, stateful session repositories, federated
// identity token verification) plus extension points for downstream products.
//
// Token kinds:
//   - Every token this package signs carries a kind claim (access, refresh,
//     email_verification, password_reset). Validation checks the signature
//     with the secret for the expected kind first, then rejects a kind
//     mismatch, so a refresh token can never pass as an access token.
//   - Refresh tokens are signed with a secret distinct from all other kinds
//     and are additionally persisted as SHA-256 digests so they can be
//     revoked server side.
//
// Sessions:
//   - SessionManager owns refresh token records and single use tokens. One
//     time tokens are consumed with a single conditional update, so
//     concurrent redemptions of the same token produce exactly one winner.
//
// Federated sign in:
//   - FederatedVerifier validates provider issued identity tokens against a
//     remote JWK set. Unknown kids trigger one shared refetch of the key set;
//     provider outages surface as retryable errors while bad signatures are
//     rejected outright.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther and the
//     command handlers to describe login, logout, refresh, and password reset
//     events. Sinks run best-effort (errors are logged) so you can forward to
//     a database or queue without blocking authentication.
//
// Claims decoration:
//   - ClaimsDecorator is invoked before JWTs are signed. Decorators may
//     enrich the metadata extension field while protected claims (sub, iss,
//     aud, exp, the token kind, etc.) remain immutable.
package auth
