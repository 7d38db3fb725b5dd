// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the run lifecycle: load a workflow
// definition, wire the tool registry and telemetry sinks, and hand the
// graph to the engine. It is decoupled from any specific entrypoint.
package app
