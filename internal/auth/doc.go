// Package auth issues and checks the bearer tokens of the bridge API.
//
// Tokens are HS256 JWTs carrying a subject and one of three roles
// (viewer, operator, admin). Permissions are a static role mapping, so a
// request is authorised from the token alone. Tokens are minted by the
// `token` command; the bridge keeps no user accounts.
package auth
