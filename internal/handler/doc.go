// Package handler implements the HTTP API of labelcomposer.
//
// NewRouter wires SchemeHandler onto a Go 1.22 pattern mux and wraps it in
// Recover, CORS and Logger middleware. Logger records request counts and
// latencies per matched route pattern.
//
// # Response Format
//
// Success responses are JSON with status 200, 201 for a scheme, atom or
// label that did not exist before, or 204 for deletes. Errors are JSON
// {error, details}:
//
//   - 400 for malformed bodies, invalid names, unknown or ambiguous atom
//     references, undecodable documents and unsupported formats
//   - 404 for unknown schemes and labels
//   - 409 when creating a scheme whose name is taken
//   - 500 otherwise
//
// # Server-Sent Events
//
// GET /events streams service events; ?scheme= narrows the stream to one
// scheme.
package handler
