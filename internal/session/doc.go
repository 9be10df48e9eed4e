// Package session drives chunked upload sessions through their state
// machine: chunk planning, sequential transfer with adaptive retry and
// offline handling, server-side finalize, and progress reporting.
package session
