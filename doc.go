// Package auth provides the authentication core of a marketplace backend:
// credential checks, access and refresh token issuance, claims aggregation
// and permission policies.
//
// Tokens:
//   - Access tokens are short lived HS256 JWTs carrying the aggregated
//     claim set. Refresh tokens are opaque random strings stored on the
//     user record and rotated on every use with a compare-and-swap update,
//     so each refresh token can be redeemed at most once.
//   - Refresh accepts an expired access token as long as its signature
//     verifies and its subject matches the refresh token's owner.
//
// Claims:
//   - ClaimsAggregator merges identity, profile, direct user claims and
//     role claims into one ordered, de-duplicated ClaimSet. Role names are
//     added as "role" claims.
//   - ClaimsDecorator is invoked before tokens are signed. Decorators may
//     add extension claims while protected claims (sub, iss, aud, exp, etc.)
//     remain immutable.
//
// Authorization:
//   - Policies named "Permission:<name>" resolve on demand to a single
//     permission requirement. Other names fall back to a PolicyProvider.
//     RouteAuthenticator exposes both as go-router middleware.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther, the
//     registration handler and the permission handler. Sinks run best-effort
//     (errors are logged) so you can forward to metrics or a queue without
//     blocking authentication.
package auth
