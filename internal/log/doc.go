// Package log holds the slog handlers oniongen writes through.
//
// There are two separate streams.
//
// The diagnostic stream is what the commands print on stderr. It goes
// through SecureHandler, which masks key material before anything is
// written: attributes named like keys or secrets, "ED25519-V3:" key blobs,
// Tor's "== ed25519v1-secret:" file header and PEM private keys.
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Info("persisted", "address", addr, "key_blob", blob) // key_blob=***
//
// The audit stream carries one "address,key" line for every generated
// identity and is never redacted. The engine writes it to a
// ForwardingHandler, and consumers subscribe with Attach:
//
//	detach := engine.Audit().Attach(log.NewLineHandler(f))
//	defer detach()
//
// LineHandler writes each record's message as a line (the audit file
// format). BufferHandler keeps the most recent lines in memory.
package log
