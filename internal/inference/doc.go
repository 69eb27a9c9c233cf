// Package inference produces first-aid assistant replies on the server.
//
// Three providers implement Provider: an OpenAI-compatible chat completions
// client (also used for NVIDIA's endpoint), a Gemini client, and an offline
// provider with canned guidance for demos and tests. Every reply carries
// the first-aid disclaimer.
package inference
