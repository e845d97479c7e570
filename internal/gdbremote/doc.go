// Package gdbremote implements the small subset of the GDB remote serial
// protocol needed to start an application under a debug server proxy and
// watch it run.
//
// # Wire format
//
// Commands travel as frames, "$payload#XX", where XX is the uppercase hex
// sum of the payload bytes modulo 256. A receiver answers every complete
// frame with a single '+'.
//
// # Handshake
//
// Launch sends three commands, each only after the previous one succeeded:
//
//	A<len>,0,<hex path>   set argument 0 to the executable
//	Hc0                   select any thread for continue
//	c                     continue, i.e. start the process
//
// The first two are confirmed by "OK". The process counts as started at
// the first "O" (console output) frame after "c". Every step has its own
// timeout; a step that times out fails with ErrLaunchTimeout and leaves
// earlier steps untouched.
//
// After the handshake the client monitors the connection and reports
// output, exit ("W"), signal ("X") and stop ("T") through Events:
//
//	client, err := gdbremote.Dial(ctx, "localhost:3333")
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	if err := client.Launch(ctx, "/private/var/containers/Bundle/.../App.app/App"); err != nil {
//	    return err
//	}
//	for ev := range client.Events() {
//	    fmt.Println(ev.Kind, ev.Code)
//	}
package gdbremote
