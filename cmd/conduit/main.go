// Conduit accepts framed binary connections for a message broker.
//
// Every listener assembles a per-connection pipeline (optional TLS, optional
// PROXY protocol detection, length-prefixed framing, backpressure) in front
// of the broker's connection handler. The server TLS context is refreshed
// from its credential files without dropping connections.
//
// Usage:
//
//	# Start the broker with a configuration file
//	conduit run --config /etc/conduit/config.yaml
//
//	# Validate the configuration and exit
//	conduit run --dry-run
//
//	# Inspect a certificate
//	conduit certs info server.crt
//
//	# Show version information
//	conduit version
package main

func main() {
	Execute()
}
