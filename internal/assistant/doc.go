// Package assistant is the client side of the first-aid chat.
//
// Client posts messages to the server's /nlp/chat route. Conversation
// serializes a user's messages through a single worker goroutine so that
// replies come back in submission order, tracks the thinking indicator, and
// supports Reset (abandon everything in flight) and Close.
package assistant
