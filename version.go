// Package vigila carries version information for the Vigila
// conversational backend.
package vigila

// Version is the build version reported by /health and the CLI.
const Version = "0.3.0"
