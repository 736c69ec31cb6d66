// Package types defines the core shared types of nativeinstall: install
// targets, target kinds, and the filesystem interface the execution
// engine operates through.
package types
