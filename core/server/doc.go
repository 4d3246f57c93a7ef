// Package server runs the HTTP listener behind the event stream service.
//
// Typical use from an errgroup:
//
//	srv, err := server.NewFromConfig(cfg,
//		server.WithLogger(log),
//		server.WithOnShutdown(func() { _ = broker.Close() }),
//	)
//	if err != nil {
//		return err
//	}
//	g.Go(srv.Run(ctx, router))
//
// Streams hold responses open, so the write timeout defaults to zero and
// shutdown hooks fire before the drain starts. Anything still connected when
// the shutdown timeout expires is closed forcibly. Connections reports how
// many plain HTTP connections are open; hijacked WebSocket connections are
// tracked by the handlers that own them.
package server
