// Package ipc exposes the running process over JSON-RPC on a Unix socket and
// ships the matching client used by the CLI.
//
// Check requests are asynchronous on the coordinator side; the server turns
// them into a blocking call by watching the event bus for the Finished event
// that belongs to the request, or reporting it stale.
package ipc
