// File: cmd/reactorcore/main.go
// Command reactorcore is the process entry point (spec.md §6): a single
// binary that runs as either the master (default) or, when re-exec'd by
// its own master with REACTORCORE_ROLE=worker, one worker. Flag surface
// and exit codes follow spec.md §6 (adapted from nginx's -c/-p/-g/-s/-t/-T
// /-v/-V/-q flag set), implemented with github.com/spf13/cobra, the
// pack's CLI framework.
//
// Author: reactorcore contributors
// License: Apache-2.0
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nginxgo/reactorcore/config"
	"github.com/nginxgo/reactorcore/logging"
	"github.com/nginxgo/reactorcore/master"
)

const version = "reactorcore/1.0.0"

var (
	flagConfig      string
	flagPrefix      string
	flagGlobal      string
	flagSignal      string
	flagTestConfig  bool
	flagDumpConfig  bool
	flagVersion     bool
	flagVersionFull bool
	flagQuiet       bool
)

func main() {
	root := &cobra.Command{
		Use:           "reactorcore",
		Short:         "event-driven connection reactor core",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	root.Flags().StringVarP(&flagConfig, "config", "c", "", "path to configuration file")
	root.Flags().StringVarP(&flagPrefix, "prefix", "p", "", "set prefix path")
	root.Flags().StringVarP(&flagGlobal, "global", "g", "", "set configuration directives inline")
	root.Flags().StringVarP(&flagSignal, "signal", "s", "", "send signal to a running master: stop, quit, reopen, reload")
	root.Flags().BoolVarP(&flagTestConfig, "test", "t", false, "test configuration and exit")
	root.Flags().BoolVarP(&flagDumpConfig, "dump", "T", false, "test configuration, dump it, and exit")
	root.Flags().BoolVarP(&flagVersion, "version", "v", false, "show version and exit")
	root.Flags().BoolVarP(&flagVersionFull, "version-full", "V", false, "show version and configure options, then exit")
	root.Flags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress non-error messages during startup")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if flagVersion || flagVersionFull {
		fmt.Println(version)
		return nil
	}

	if os.Getenv(master.WorkerRoleEnv) == master.WorkerRoleValue {
		return runWorker()
	}

	cfg, err := config.Load(flagConfig, flagGlobal)
	if err != nil {
		return fmt.Errorf("reactorcore: %w", err)
	}

	if flagTestConfig || flagDumpConfig {
		if flagDumpConfig {
			fmt.Printf("%+v\n", *cfg)
		}
		if !flagQuiet {
			fmt.Println("configuration test successful")
		}
		return nil
	}

	if flagSignal != "" {
		return sendSignal(cfg, flagSignal)
	}

	log := logging.New(cfg.LogLevel)
	return runMaster(cfg, log)
}
