/*
Package tls owns the server TLS context used by every TLS listener.

A Manager reads an SSLConfiguration snapshot from a CredentialSource, selects
a Factory by the snapshot's plugin name and builds the first context. The
built context is immutable and published through an atomic pointer, so
CreateServerEngine never blocks on a refresh:

	mgr := tls.NewManager(tls.ConfigSource{}, tls.ManagerOptions{Logger: logger})
	if err := mgr.Initialize(ctx); err != nil {
		return err // fatal: a TLS listener cannot start without a context
	}

	conn, err := mgr.CreateServerEngine(rawConn)

# Refresh

ScheduleRefresh registers a fixed-delay job that reloads the snapshot and
rebuilds the context when the snapshot or any referenced file changed.
Engines created before a refresh keep the configuration they were built
with. A failed refresh is logged and the previous context stays in service:

	if err := mgr.ScheduleRefresh(sched, 300*time.Second); err != nil {
		return err
	}

A CredentialWatcher can additionally trigger a refresh shortly after the
credential files change on disk.

# Factories

The "default" factory (FileFactory) reads a PEM certificate, key and optional
trust bundle, or a PKCS#12 key store and trust store. Other factories are
registered with RegisterFactory and selected by name.

# Client Authentication

  - require_trusted_client_cert_on_connect: RequireAndVerifyClientCert
  - allow_insecure_connection: RequestClientCert (no verification)
  - trust certs configured: VerifyClientCertIfGiven
  - otherwise: NoClientCert
*/
package tls
