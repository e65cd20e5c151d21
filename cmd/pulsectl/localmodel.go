package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the local model service",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := newManager()
		if err := mgr.StartService(context.Background()); err != nil {
			return err
		}
		fmt.Println("local model service starting")
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the local model service",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := newManager()
		if err := mgr.StopService(context.Background()); err != nil {
			return err
		}
		fmt.Println("local model service stopped")
		return nil
	},
}

var toggleOfflineCmd = &cobra.Command{
	Use:   "toggle-offline [true|false]",
	Short: "Enable or disable offline mode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		enable, err := strconv.ParseBool(args[0])
		if err != nil {
			return fmt.Errorf("invalid boolean %q: %w", args[0], err)
		}
		mgr := newManager()
		if err := mgr.ToggleOfflineMode(context.Background(), enable); err != nil {
			return err
		}
		fmt.Printf("offline mode set to %v\n", enable)
		return nil
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull MODEL",
	Short: "Pull a local model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := newManager()
		if err := mgr.PullModel(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("pulled model %s\n", args[0])
		return nil
	},
}
