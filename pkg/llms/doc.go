// Package llms provides the provider-neutral model contract used by the chat client:
// messages made of ordered content parts, call options, tool declarations and
// the response shape returned by every gateway.
//
// Provider implementations live in the subpackages and translate these types
// to and from the vendor SDKs.
package llms
