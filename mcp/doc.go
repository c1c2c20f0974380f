// Package mcp connects the chat client to a tool provider over the Model Context Protocol.
//
// Connect launches the provider process described by ProviderConfig, performs the
// protocol handshake and returns a Session implementing tools.Session.
// Server and RegisterTool expose typed Go handlers as MCP tools for provider binaries.
package mcp
