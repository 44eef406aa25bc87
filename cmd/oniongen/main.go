// Package main provides the entry point for the oniongen CLI.
//
// oniongen generates Tor v3 onion service identities until one matches a
// pattern, and saves each match as a hidden service directory.
//
// Usage:
//
//	oniongen generate '^tor'
//	oniongen list --sessions
//	oniongen probe ./keys/torxyz...
//
// See --help for all available options.
package main

func main() {
	Execute()
}
