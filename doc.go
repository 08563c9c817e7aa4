// Package identity manages the identity lifecycle: registration with
// deferred activation, email approval and forgotten password recovery.
//
// Hash links:
//   - HashLinkCodec encodes a self verifying, time bound token carrying the
//     subject id and a bcrypt tag of id+login. Tokens are never stored; the
//     approve flow is single use because it flips the active flag, the
//     forgotten flow stays usable until the link expires.
//
// Store:
//   - Identities is the bun backed gateway over the identity table. The
//     column set is configurable through Config and must keep
//     id, login, hash, role and active.
//
// Lifecycle:
//   - Lifecycle combines the codec and the store to approve identities and
//     reset passwords. Failures are go-errors values, KindOf maps them to a
//     FailureKind.
//
// Activity sinks:
//   - ActivitySink receives lifecycle events. Sinks run best-effort (errors
//     are logged) so a failing audit log never blocks a user flow.
package identity
