// Package logging builds the process logger.
//
// Components log through log/slog and tag themselves with a "component"
// attribute. New configures the handler from config.LoggingConfig:
//   - JSON, text and console formats
//   - level filtering (debug, info, warn, error)
//   - masking of attributes whose key names a secret, so values such as the
//     TLS configuration can be logged whole
//   - connection id, listener and trace ids taken from the context
//
// # Usage
//
//	logger, err := logging.New(cfg.Telemetry.Logging, os.Stderr)
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger)
//
//	ctx = logging.WithConnectionID(ctx, ch.ID())
//	logger.InfoContext(ctx, "frame received", "size", n) // includes conn_id
package logging
