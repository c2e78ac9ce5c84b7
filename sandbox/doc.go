// Package sandbox provides secure execution of untrusted code steps.
//
// The sandbox package implements the execution engine a workflow engine
// uses to run small user-supplied code snippets as a single pipeline
// step. It supports multiple strategies: an in-process JavaScript
// interpreter with a constrained global scope, a supervised Python child
// process with isolated temporary artifacts, and delegation to a remote
// runner service.
//
// Every execution passes through the Dispatcher, which enforces
// preconditions, runs the static security validator for the Python path,
// selects a strategy, and normalizes all results into a single Outcome
// shape with a closed error taxonomy. Nothing throws past the Dispatcher
// boundary.
//
// Usage:
//
//	dispatcher := sandbox.NewDispatcher(logger, cfg, metrics)
//	outcome := dispatcher.Execute(ctx, sandbox.ExecuteRequest{
//	    Language:  sandbox.LanguagePython,
//	    Code:      "result = {\"sum\": input[\"a\"] + input[\"b\"]}",
//	    Input:     map[string]any{"a": 10, "b": 20},
//	    TimeoutMs: 5000,
//	})
package sandbox
