// Package api implements the JSON HTTP API for the assistant.
//
// Routes are registered on a net/http ServeMux with method patterns.
// The middleware stack, outermost first:
//
//	Recovery → RequestID → Logging → CORS → RateLimit → Routes
//
// Health probes (/health, /ready) bypass the middleware stack so
// orchestrator checks are never rate limited.
//
// All error responses share one JSON shape:
//
//	{"error": {"code": "invalid_body", "message": "..."}}
package api
