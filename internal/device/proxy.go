package device

import (
	"os/exec"
	"strconv"
)

// ProxySpawner builds the command for the debug server proxy.
type ProxySpawner interface {
	ProxyCommand(port int) (*exec.Cmd, error)
}

// ProxyCommand returns an unstarted "idevicedebugserverproxy <port>"
// command. The proxy runs until terminated, so it is not bound to a context.
func (d *Device) ProxyCommand(port int) (*exec.Cmd, error) {
	argv, err := SplitCommand(d.tools.DebugServerProxy)
	if err != nil {
		return nil, err
	}
	if d.udid != "" {
		argv = append(argv, "-u", d.udid)
	}
	argv = append(argv, strconv.Itoa(port))
	return exec.Command(argv[0], argv[1:]...), nil
}
