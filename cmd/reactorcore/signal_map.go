// File: cmd/reactorcore/signal_map.go
package main

import (
	"fmt"
	"os"
	"syscall"
)

// signalFor maps the -s flag's accepted names to the OS signal
// master.InstallSignalHandlers listens for.
func signalFor(name string) (os.Signal, error) {
	switch name {
	case "stop":
		return syscall.SIGTERM, nil
	case "quit":
		return syscall.SIGQUIT, nil
	case "reopen":
		return syscall.SIGUSR1, nil
	case "reload":
		return syscall.SIGHUP, nil
	default:
		return nil, fmt.Errorf("reactorcore: unknown signal name %q (want stop, quit, reopen, reload)", name)
	}
}
