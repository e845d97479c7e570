// Package process runs and tracks the helper processes the launcher spawns,
// chiefly the debug server proxy.
//
// A Process wraps an exec.Cmd with exit tracking and keeps the tail of its
// combined output so a failed spawn can be reported with what the tool said.
// The Supervisor owns every long-running child and tears them down on
// Shutdown:
//
//	sup := process.NewSupervisor()
//	defer sup.Shutdown(2 * time.Second)
//
//	proc, err := sup.Start("debugserverproxy", exec.Command("idevicedebugserverproxy", "3333"))
//	if err != nil {
//	    return err
//	}
//	<-proc.Done()
//	fmt.Println(proc.ExitCode(), proc.Output())
//
// Both types are safe for concurrent use.
package process
