// Package auth authenticates the agent's callers.
//
// Foreground pages connecting to the message bus present a JWT signed with
// the shared bus secret, either as a bearer token or, since browsers cannot
// set headers on a WebSocket handshake, as the access_token query
// parameter. The push and install-offer endpoints accept a static API key.
// Middleware wires an Authenticator in front of an http.Handler.
package auth
