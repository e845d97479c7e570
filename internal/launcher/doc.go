// Package launcher ties the device utilities, the debug server proxy and
// the gdbremote handshake together.
//
// A Launcher owns a ProxyRegistry holding the proxy it last started.
// StartDebugProxy replaces that proxy (and, through a PIDFile, one left
// behind by an earlier invocation) before mounting the developer disk
// image and spawning a new one. StartApp resolves a bundle identifier to
// its executable and drives the handshake until the application runs.
//
//	l := launcher.NewFromConfig(cfg, device.New(cfg), logger)
//	defer l.Close()
//
//	client, err := l.Launch(ctx, "com.example.app", cfg.ProxyPort, 0)
//	if err != nil {
//	    fmt.Println(launcher.Message(err))
//	    return err
//	}
//	for ev := range client.Events() {
//	    ...
//	}
package launcher
