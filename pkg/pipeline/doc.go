// Package pipeline bootstraps accepted connections.
//
// Every connection accepted by a listener is handed to an Assembler, which
// wraps it in a Channel and attaches a fixed, ordered list of stages:
//
//	consolidation   buffer outbound bytes (1024 bytes), flush before reads
//	tls             server-side TLS engine (listeners with TLS only)
//	encoder         4-byte big-endian length prefix on outbound frames
//	proxyProtocol   PROXY v1/v2 header detection (when enabled)
//	frameDecoder    length-prefixed frame decoding with a size limit
//	flowController  bounded queue between decoding and dispatch
//	handler         application handler from the HandlerFactory
//
// A Channel starts with its Gate closed: nothing is read from the connection
// and no frame reaches the handler until the handler calls EnableReads.
//
// Basic usage:
//
//	asm, err := pipeline.NewAssembler(
//		pipeline.Options{EnableTLS: true, ListenerName: "internal-tls"},
//		handlers,
//		pipeline.WithTLS(manager),
//	)
//	if err != nil {
//		return err
//	}
//	ch, err := asm.Assemble(ctx, conn)
//	if err != nil {
//		return err
//	}
//	go ch.Serve(ctx)
package pipeline
