// Package session replaces a global "current user" with an explicit
// Session value. Manager owns the login and logout boundary; handlers and
// commands receive the session through a context.
package session
