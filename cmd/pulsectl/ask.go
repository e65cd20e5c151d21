package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/itsneelabh/pulse/classifier"
	"github.com/itsneelabh/pulse/errtaxonomy"
	"github.com/itsneelabh/pulse/execution"
	"github.com/itsneelabh/pulse/localmodel"
	"github.com/itsneelabh/pulse/orchestrator"
	"github.com/itsneelabh/pulse/remote"
	"github.com/itsneelabh/pulse/routing"
)

var multiModels []string

// multiCmd drives spec.md §4.7's multi_model_query: the same prompt
// fanned out to several models concurrently, the CLI surface that
// makes remote.Client.MultiModelQuery reachable outside of tests.
var multiCmd = &cobra.Command{
	Use:   "multi TEXT",
	Short: "Query several models concurrently with one prompt",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(multiModels) == 0 {
			return fmt.Errorf("multi requires at least one --model flag")
		}
		orch := newOrchestrator()
		result := orch.ProcessMultiModel(context.Background(), strings.Join(args, " "), multiModels)
		for _, model := range multiModels {
			outcome := result.Results[model]
			if outcome == nil {
				fmt.Printf("%s: no result\n", model)
				continue
			}
			if !outcome.Success {
				fmt.Printf("%s: error: %s\n", model, outcome.ErrorDetail)
				continue
			}
			fmt.Printf("%s: %s\n", model, outcome.Content)
		}
		return nil
	},
}

func init() {
	multiCmd.Flags().StringSliceVar(&multiModels, "model", nil, "model alias to query (repeatable)")
	rootCmd.AddCommand(multiCmd)
}

// askCmd drives a single request through the full C1-C10 pipeline,
// the end-to-end counterpart to the other subcommands, which only
// exercise one component at a time.
var askCmd = &cobra.Command{
	Use:   "ask TEXT",
	Short: "Route and execute a single request through the orchestrator",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch := newOrchestrator()
		resp := orch.ProcessInput(context.Background(), strings.Join(args, " "))
		fmt.Println(resp.Content)
		if !resp.Success {
			return fmt.Errorf("request failed: %s", resp.ErrorDetail)
		}
		return nil
	},
}

func newOrchestrator() *orchestrator.Orchestrator {
	memStats := localmodel.NewSystemMemoryStats()
	localClient := localmodel.NewClient(memStats, localmodel.WithClientLogger(rootLogger.WithComponent("pulse/localmanager")))
	manager := localmodel.NewManager(localClient, memStats, localmodel.WithManagerLogger(rootLogger.WithComponent("pulse/localmanager")))

	remoteClient := remote.NewClient(rootConfig.RemoteAPIKey, rootConfig.RemoteBaseURL, rootLogger.WithComponent("pulse/remote"))
	table := routing.New(routing.LoadConfig(rootConfig.RoutingTablePath), rootLogger.WithComponent("pulse/routing"))
	intentClassifier := classifier.New(nil, memStats, classifier.WithLogger(rootLogger.WithComponent("pulse/classifier")))
	monitor := errtaxonomy.NewMonitor(errtaxonomy.DefaultRingSize, errtaxonomy.NoOpNotifier{}, rootLogger.WithComponent("pulse/errors"))

	c := openCache()

	execCfg := execution.DefaultConfig()
	execCfg.Telemetry = rootConfig.Telemetry()
	execCfg.Simulate = rootConfig.Simulate

	return orchestrator.New(orchestrator.Deps{
		Cache:      c,
		Classifier: intentClassifier,
		Table:      table,
		Remote:     remoteClient,
		Local:      localClient,
		Manager:    manager,
		Monitor:    monitor,
		ExecConfig: execCfg,
		Logger:     rootLogger.WithComponent("pulse/orchestrator"),
		Telemetry:  rootConfig.Telemetry(),
	})
}

func init() {
	rootCmd.AddCommand(askCmd)
}
