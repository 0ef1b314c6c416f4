// Package credential hashes and verifies passwords, enforces the password
// policy and produces per-user RSA key pairs whose private half is wrapped
// under the user's password.
//
// A wrapped private key can only be recovered with the password it was
// wrapped under. There is no escrow and no recovery path.
package credential
