// Package server exposes runs over HTTP.
//
//	POST   /api/v1/conversations/{id}/messages  start a run, stream it as SSE
//	POST   /api/v1/conversations/{id}/cancel    cancel the active run
//	GET    /api/v1/conversations/{id}           stored conversation
//	DELETE /api/v1/conversations/{id}           forget a conversation
//	GET    /healthz
//	GET    /metrics
//
// The message stream carries one event per step, named after the step kind,
// the side events of stream (sub-agent progress and text, task snapshots,
// created files, token usage), keepalive comments and a closing done event.
// A client that disconnects cancels its run.
package server
