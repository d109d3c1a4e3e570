// Package auth protects the admin endpoint with bearer tokens.
//
// Tokens are configured by name:
//
//	telemetry:
//	  admin_tokens:
//	    - name: prometheus
//	      token: ${secret:prometheus-token}
//
// When at least one token is configured, the metrics and version endpoints
// require "Authorization: Bearer <token>". Liveness and readiness probes
// stay unauthenticated.
package auth
