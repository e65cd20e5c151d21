// Command pulsectl is the operator CLI for the routing and execution
// core: inspecting the response cache, operating the local model
// service, and sending ask/multi requests through the orchestrator,
// grounded on the teacher pack's Cobra-based
// CLI layout (internal/cli/root.go in the Tutu engine example).
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/itsneelabh/pulse/cache"
	"github.com/itsneelabh/pulse/core"
	"github.com/itsneelabh/pulse/localmodel"
)

var rootConfig = mustConfig()

var rootLogger = rootConfig.Logger()

func mustConfig() *core.Config {
	cfg, err := core.NewConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	return cfg
}

var rootCmd = &cobra.Command{
	Use:           "pulsectl",
	Short:         "Operate the pulse routing and execution core",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var cacheDBPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&cacheDBPath, "cache-db", defaultCacheDBPath(), "path to the response cache sqlite file")
	rootCmd.AddCommand(statsCmd, clearCmd, startCmd, stopCmd, toggleOfflineCmd, pullCmd)
}

func defaultCacheDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "pulse_cache.db"
	}
	return filepath.Join(home, ".pulse", "cache.db")
}

func openCache() *cache.Cache {
	return cache.Open(cacheDBPath, rootLogger.WithComponent("pulse/cache"))
}

func newManager() *localmodel.Manager {
	memStats := localmodel.NewSystemMemoryStats()
	client := localmodel.NewClient(memStats, localmodel.WithClientLogger(rootLogger.WithComponent("pulse/localmanager")))
	return localmodel.NewManager(client, memStats, localmodel.WithManagerLogger(rootLogger.WithComponent("pulse/localmanager")))
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
