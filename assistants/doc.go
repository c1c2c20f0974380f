// Package assistants answers user queries with a language model and the tools of a provider session.
//
// An Assistant lists the provider tools on every query, declares them to the model,
// executes a single round of the requested tool calls and asks the model to answer
// with each tool result. ProcessQuery always returns text: failures are reported
// in the answer, and the details are sent to the logger and the Callback.
package assistants
