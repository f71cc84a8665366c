// Package auth verifies bearer tokens for the management API.
//
// Token issuance lives in the upstream booking platform; this service
// only validates HS256 signatures against the shared secret and reads
// the subject and role claims. There are no user accounts, sessions,
// or refresh tokens here.
//
// Two roles exist: "user" may request door access for themselves,
// "admin" may additionally inspect and cancel power-off tasks and read
// the audit trail.
package auth
