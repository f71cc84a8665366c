// Package api provides the HTTP management surface for Roomgate Core.
//
// It exposes the door-open decision endpoint, power-off task inspection
// and cancellation, the audit trail, and scheduler health to the
// upstream booking platform and operator tooling.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// All routes under /api/v1 except /health and /metrics require a bearer
// token signed by the upstream platform. Role "admin" unlocks the task,
// audit, and scheduler endpoints; role "user" can only request door
// access and read their own task status.
package api
