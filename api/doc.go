// Package api defines the JSON request and response types of the Sculptflow HTTP API.
//
// # API Overview
//
// Sculptflow exposes one editing session over a RESTful API:
//   - Image loading and session / scene reset
//   - Point prompts and the pending selection mask
//   - Scene objects: commit, select, visibility, mask replacement, transform
//   - 3D generation for one object or every selecting object
//   - A websocket event stream of session changes
//   - Health monitoring and metrics
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080/api/v1
//
// Mask and asset payloads are binary downloads; the JSON views carry only
// their metadata.
package api
