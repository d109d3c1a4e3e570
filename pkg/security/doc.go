/*
Package security groups the broker's transport security, secret resolution
and admin authentication packages.

# TLS

pkg/security/tls owns the server TLS context. A Manager builds it from a
CredentialSource, hands out one server engine per accepted connection and
refreshes the context in the background:

	m := tls.NewManager(tls.ConfigSource{Get: config.GetConfig, Secrets: resolver}, tls.ManagerOptions{
		Logger:   logger,
		Observer: collector,
	})
	if err := m.Initialize(ctx); err != nil {
		return err
	}
	if err := m.ScheduleRefresh(sched, cfg.Broker.RefreshInterval()); err != nil {
		return err
	}

# Secrets

Passwords and admin tokens may reference secrets as ${secret:name}. They are
resolved from a directory of secret files, then from the environment:

	files, err := secrets.NewFileProvider("/run/secrets/conduit")
	if err != nil {
		return err
	}
	resolver := secrets.NewManager(files, secrets.NewEnvProvider(secrets.DefaultEnvPrefix))

	password, err := resolver.ResolveReferences(ctx, "${secret:keystore-password}")

# Admin authentication

Bearer tokens protect admin endpoints:

	validator := auth.NewTokenValidator([]auth.Token{{Name: "ops", Value: token}})
	mux.Handle("/metrics", auth.NewMiddleware(validator, logger).Handle(metricsHandler))
*/
package security
