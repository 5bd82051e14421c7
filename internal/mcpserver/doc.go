// Package mcpserver manages connections to external MCP tool-server
// subprocesses.
//
// Each declared server is spawned from its configured command, spoken to
// over stdio with correlated JSON messages, and handshaken before any tool
// call is accepted. Connections have independent lifecycles: one server
// crashing, hanging or failing its handshake never affects the others.
//
// The manager is the only mutator of connection lifecycle state. It is
// constructed once and injected into callers; there is no ambient singleton.
package mcpserver
