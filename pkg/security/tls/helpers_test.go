package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"testing"
	"time"

	"mercator-hq/conduit/internal/testpki"
)

// pemSnapshot returns a snapshot for freshly written server files.
func pemSnapshot(t *testing.T, ca *testpki.CA, cn string) (SSLConfiguration, testpki.Files) {
	t.Helper()
	files := ca.WriteServerFiles(t, t.TempDir(), cn)
	return SSLConfiguration{
		CertificateFilePath: files.Cert,
		KeyFilePath:         files.Key,
		TrustCertsFilePath:  files.CA,
		FactoryPlugin:       DefaultFactoryName,
		ServerMode:          true,
	}, files
}

type engineSource interface {
	CreateServerEngine(conn net.Conn) (*tls.Conn, error)
}

// handshake runs a client handshake against an engine from src over a
// loopback TCP connection and returns the certificate the server presented.
// A server-side handshake failure is returned even when the client side
// completed first.
func handshake(t *testing.T, src engineSource, clientCfg *tls.Config) (*x509.Certificate, error) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		raw, err := ln.Accept()
		if err != nil {
			serverErr <- err
			return
		}
		defer raw.Close()
		server, err := src.CreateServerEngine(raw)
		if err != nil {
			serverErr <- err
			return
		}
		serverErr <- server.HandshakeContext(ctx)
	}()

	raw, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer raw.Close()

	client := tls.Client(raw, clientCfg)
	if err := client.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	// Keep reading so a late alert from the server is consumed.
	go func() { _, _ = io.Copy(io.Discard, client) }()

	if err := <-serverErr; err != nil {
		return nil, err
	}
	return client.ConnectionState().PeerCertificates[0], nil
}

func clientConfig(ca *testpki.CA) *tls.Config {
	return &tls.Config{RootCAs: ca.Pool(), ServerName: "localhost"}
}
