// Package app contains the core application logic. It wires the resolver,
// the batch merger and the runner together and owns the run lifecycle,
// decoupled from any specific entrypoint like a CLI.
package app
