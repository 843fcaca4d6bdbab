// Package preflight provides readiness checks for the filesystem paths and
// external services castreel depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup. A failed directory check aborts
//     startup before any job is dispatched.
//   - The CLI "castreel status" command uses CheckServices to display
//     reachability of the configured endpoints.
package preflight
