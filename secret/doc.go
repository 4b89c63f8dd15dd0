// Package secret resolves credentials referenced from offlinekit
// configuration.
//
// Configuration values may embed environment variables (see
// ExpandEnvStrict) or secret references resolved by a Provider:
//
//	secretref:env:OFFLINEKIT_BUS_SECRET
//	secretref:file:bus.key
//
// References may stand alone or appear inline ("Bearer secretref:file:k").
// Providers never log the values they return.
package secret
