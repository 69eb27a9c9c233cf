// Package fault defines the error taxonomy shared by every layer.
//
// Each failure carries a Kind. The kind decides the recovery policy:
// environmental kinds (network, permissions, missing hardware) fall back
// to a degraded path and surface a notice, while structural kinds
// (malformed or oversized payloads) abort the operation until the user
// retries. Nothing in this taxonomy is fatal to the process.
package fault
