// Package authclient talks to the lifeline authentication service.
//
// Failures are classified for the caller: fault.KindNetworkUnreachable when
// the service could not answer (transport error, 5xx, missing route) and
// fault.KindAuthRejected when it answered and refused the credentials.
package authclient
