// Package liteservenv launches LiteServ test servers and pools them for
// parallel test suites.
//
// # Launching a single server
//
// Launch starts the LiteServ executable as a child process and returns as
// soon as the process is running. Readiness is signaled separately: the
// handle's Ready channel is closed once LiteServ writes
// "is listening on port <port>" to its standard error.
//
//	h, err := liteservenv.Launch(ctx, liteservenv.LaunchRequest{
//	    Path: "/usr/local/bin/LiteServ",
//	    Port: 59840,
//	    Dir:  t.TempDir(),
//	})
//	if err != nil {
//	    t.Fatal(err) // *liteservenv.LaunchError
//	}
//	defer h.Close()
//
//	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
//	defer cancel()
//	if err := h.WaitReady(waitCtx); err != nil {
//	    t.Fatal(err)
//	}
//	// h.URL() is now accepting requests.
//
// # Pooling
//
// NewManager returns a process-wide Manager that hands out running LiteServ
// instances, optionally seeded with the .cblite and .cblite2 databases of a
// seed directory.
//
//	mgr := liteservenv.NewManager(
//	    liteservenv.WithLiteServBinary("/usr/local/bin/LiteServ"),
//	    liteservenv.WithSeedDir("testdata/seed"),
//	)
//	if err := mgr.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Shutdown()
//
//	inst, err := mgr.Acquire(ctx)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer inst.Release() // returns nil on success; safe to ignore in defer
//
//	url, err := inst.URL()
//
// On Release the instance is stopped and re-seeded on its next Acquire
// (ReleaseRestart, the default), cleaned of every non-seeded database
// (ReleaseClean), or handed back as-is (ReleaseNone).
package liteservenv
