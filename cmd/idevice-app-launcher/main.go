// Command idevice-app-launcher launches applications on a tethered iOS
// device through idevicedebugserverproxy.
package main

import (
	"os"

	"github.com/Bhaskers-Blu-Org2/idevice-app-launcher/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
