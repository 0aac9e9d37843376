// Package main is the entry point of the forgeapi command.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/forgeapi/forgeapi/cmd/forgeapi/daemon"
)

func main() {
	a, err := daemon.New()
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	os.Exit(run(a))
}

type app interface {
	Run() error
	UsageError() bool
	Hup() bool
	Quit()
}

// run executes the app and returns the exit code: 2 for usage errors, 1 for other failures.
func run(a app) int {
	defer installSignalHandler(a)()

	if err := a.Run(); err != nil {
		slog.Error(err.Error())

		if a.UsageError() {
			return 2
		}
		return 1
	}

	return 0
}

// installSignalHandler quits the app on SIGINT and SIGTERM and lets it handle SIGHUP.
// The returned function stops the handler.
func installSignalHandler(a app) func() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for sig := range c {
			switch sig {
			case syscall.SIGINT, syscall.SIGTERM:
				slog.Info("Quitting", "signal", sig.String())
				a.Quit()
				return
			case syscall.SIGHUP:
				if a.Hup() {
					a.Quit()
					return
				}
			}
		}
		slog.Debug("Signal channel closed")
	}()

	return func() {
		signal.Stop(c)
		close(c)
		wg.Wait()
	}
}
