// Package tor provides Tor network connectivity for oniongen.
//
// It dials through a Tor SOCKS5 proxy, either an external daemon or one
// started with tornago, and probes whether a generated v3 address is
// already reachable on the network.
package tor
