// Package tools defines the contract between the chat client and a tool provider:
// tool descriptors, invocation results and the session used to list and call tools.
// Declarations converts descriptors into model tool declarations.
package tools
