// Package config provides configuration structures and utilities for oniongen.
// It holds the generation limits, output locations, report preferences and
// the Tor settings used when probing generated addresses.
package config
