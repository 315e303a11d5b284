// Package token issues and verifies the credential tokens handed to the storefront
// after a successful challenge. Tokens are compact JWS (Ed25519 or HS256) carrying
// the user id, role and display name.
package token
