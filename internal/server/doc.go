// Package server implements the HTTP server using Echo framework.
//
// Routes: /ws (WebSocket connect), health/metrics/version endpoints, and a
// small API surface: realtime stats for operators and an event-publish
// endpoint for domain-event producers. Identity is taken from gateway headers
// behind the Verifier seam; this service never verifies credentials itself.
package server
