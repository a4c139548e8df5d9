// Package server exposes the migration operations and the run history over HTTP.
//
// # Routes
//
//	GET  /health
//	POST /migrations/users
//	POST /migrations/channels
//	POST /migrations/accounts/{id}
//	POST /migrations/channels/{id}
//	GET  /runs
//	GET  /runs/{id}
//
// Migration requests take an optional JSON body with the window bounds and paging ([MigrationRequest]) and run
// synchronously: the response is the final [tasks.MigrationResult] once the run has finished. The run ID is
// returned in the X-Run-ID header.
//
// # Middleware
//
// Routing uses chi. Every request gets a request ID and is logged through the charm logger by [RequestLogger];
// panics are recovered by chi's Recoverer.
package server
