// Package gemini provides a generation.TextGenerator backed by Google's Gemini
// API through the google.golang.org/genai client.
//
// The adapter translates between plain prompts and the genai request and
// response types:
//
//   - requests are sent as a single user text part to the configured model
//   - responses are reduced to the concatenated text of the first candidate
//   - safety stops and empty candidates become permanent generation errors
//   - other API failures are retried with exponential backoff and jitter
package gemini
