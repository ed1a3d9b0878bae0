// File: cmd/reactorcore/run_master.go
// runMaster wires config -> cycle -> master, installs signal handlers,
// writes the pidfile, and drives the master's event-processing loop
// until stopped (spec.md §4.9).
//
// Author: reactorcore contributors
// License: Apache-2.0
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nginxgo/reactorcore/api"
	"github.com/nginxgo/reactorcore/config"
	"github.com/nginxgo/reactorcore/cycle"
	"github.com/nginxgo/reactorcore/master"
	"github.com/nginxgo/reactorcore/modules/echo"
)

func moduleFactory(log *logrus.Logger) cycle.ModuleFactory {
	return func(name string) (api.Module, error) {
		switch name {
		case "echo":
			return echo.New(log), nil
		default:
			return nil, fmt.Errorf("unknown module %q", name)
		}
	}
}

func runMaster(cfg *config.StaticConfig, log *logrus.Logger) error {
	c, err := cycle.New(cfg, moduleFactory(log))
	if err != nil {
		return fmt.Errorf("reactorcore: building cycle: %w", err)
	}

	if err := os.WriteFile(cfg.PIDFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		log.WithError(err).Warn("failed to write pidfile")
	}
	defer os.Remove(cfg.PIDFile)

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("reactorcore: resolving executable path: %w", err)
	}

	m := master.New(c, log, exe, os.Args[1:])
	m.SetReloadSource(func() (*config.StaticConfig, error) {
		return config.Load(flagConfig, flagGlobal)
	}, moduleFactory(log))
	m.InstallSignalHandlers()
	if err := m.StartWorkers(); err != nil {
		return fmt.Errorf("reactorcore: starting workers: %w", err)
	}
	log.WithField("workers", cfg.WorkerProcesses).Info("master started")

	if flagConfig != "" {
		if watcher, err := config.WatchFile(flagConfig); err != nil {
			log.WithError(err).Warn("config file watch disabled")
		} else {
			defer watcher.Close()
			go func() {
				for range watcher.Changed {
					m.RequestReload()
				}
			}()
		}
	}

	for m.RunOnce() {
		time.Sleep(10 * time.Millisecond)
	}
	if err := m.WaitWorkersExit(10 * time.Second); err != nil {
		log.WithError(err).Warn("timed out waiting for workers to exit")
	}
	log.Info("master exiting")
	return nil
}

// sendSignal implements -s {stop,quit,reopen,reload} by reading the
// configured pidfile and sending the matching OS signal to the running
// master (spec.md §6).
func sendSignal(cfg *config.StaticConfig, name string) error {
	data, err := os.ReadFile(cfg.PIDFile)
	if err != nil {
		return fmt.Errorf("reactorcore: reading pidfile %s: %w", cfg.PIDFile, err)
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("reactorcore: invalid pidfile contents: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}

	sig, err := signalFor(name)
	if err != nil {
		return err
	}
	return proc.Signal(sig)
}
