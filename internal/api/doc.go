// Package api holds the JSON request and response bodies exchanged between
// the lifeline server and its clients.
package api
