// Package dispatch runs one check-in cycle against the order server.
//
// A cycle checks in with the current printer status, receives the pending
// jobs as a JSON object of job id to hex-encoded printer instructions, and
// for each job in server order:
//   - decodes the hex payload (a bad payload skips only that job)
//   - writes the bytes to the printer
//   - acknowledges completion to the server
//
// Nothing is retried inside a cycle. The server owns redelivery, and the
// control loop owns cadence. Transient failures bump a per-endpoint counter
// that is reported in logs and never reset.
package dispatch
