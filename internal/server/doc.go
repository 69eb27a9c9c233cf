// Package server is the HTTP API behind the console: accounts, emergency
// code generation and scanning, incident resolution and the first-aid chat
// relay.
//
// Routes are registered on a gorilla/mux router. Every body is JSON, and
// every failure is an api.ErrorResponse with a "detail" message. Accounts
// and incidents live in the SQLite store; bearer tokens are opaque UUIDv7
// values held in memory and are lost on restart.
package server
