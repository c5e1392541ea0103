// Package janitor runs periodic room maintenance.
//
// Each pass:
//   - Prunes expired auth token challenges in every open room
//   - Closes room pools that have been idle past the configured timeout
package janitor
