// Package generation defines the boundary between the learning core and
// external LLM services. Components depend on the TextGenerator interface;
// platform/gemini and platform/anthropic provide implementations, and
// Disabled stands in when no provider is configured.
//
// The package also owns the prompts used by the compare-and-reveal stage and
// the retry policy shared by the provider clients.
package generation
