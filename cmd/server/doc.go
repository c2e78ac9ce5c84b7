// Package main is the entry point for the stepbox MCP server.
//
// The stepbox server implements a secure, configurable Model Context Protocol
// (MCP) server that executes untrusted workflow code steps (JavaScript in an
// in-process interpreter, Python in a supervised child process or via a
// remote runner) with static capability gating, wall-clock deadlines, and
// deterministic cleanup. The server supports both stdio and HTTP transports
// and optionally serves prometheus metrics.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration.
package main
