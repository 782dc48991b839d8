// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	workspaceDir string
	outputMode   string
	logLevel     string
	traceMode    string
	metricsFile  string
	snifferCmd   string

	stage              string
	appList            []string
	syncState          bool
	allowMissing       bool
	deleteProject      bool
	deleteCloudBackups bool
	forcePush          bool
	imageTag           string

	rootCmd = &cobra.Command{
		Use:   "launchpad",
		Short: "Deploy a multi-app workspace to a self-hosted application platform",
		Long: `launchpad deploys the backend and frontend apps of a workspace in
dependency order, provisions their databases, caches, DNS records and
backups, and keeps a per-stage ledger of everything it created.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// --- Deployment ---
	deployCmd = &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the workspace, or the apps named by --apps, to a stage",
		Args:  cobra.NoArgs,
		RunE:  runDeploy, // Defined in cmd_deploy.go
	}
	undeployCmd = &cobra.Command{
		Use:   "undeploy",
		Short: "Delete everything the stage's state records, in reverse order",
		Args:  cobra.NoArgs,
		RunE:  runUndeploy, // Defined in cmd_deploy.go
	}

	// --- State ---
	stateCmd = &cobra.Command{
		Use:   "state",
		Short: "Inspect and share the deploy state of a stage",
	}
	stateShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the local state of a stage",
		Args:  cobra.NoArgs,
		RunE:  runStateShow, // Defined in cmd_state.go
	}
	statePullCmd = &cobra.Command{
		Use:   "pull",
		Short: "Replace the local state with the remote copy",
		Args:  cobra.NoArgs,
		RunE:  runStatePull, // Defined in cmd_state.go
	}
	statePushCmd = &cobra.Command{
		Use:   "push",
		Short: "Upload the local state to the remote bucket",
		Args:  cobra.NoArgs,
		RunE:  runStatePush, // Defined in cmd_state.go
	}
	stateDiffCmd = &cobra.Command{
		Use:   "diff",
		Short: "Show differences between the local and remote state",
		Args:  cobra.NoArgs,
		RunE:  runStateDiff, // Defined in cmd_state.go
	}

	// --- Inspection ---
	secretsCmd = &cobra.Command{
		Use:   "secrets",
		Short: "Work with stage secrets",
	}
	secretsReportCmd = &cobra.Command{
		Use:   "report",
		Short: "Show which apps have, need, or lack secrets for a stage",
		Args:  cobra.NoArgs,
		RunE:  runSecretsReport, // Defined in cmd_inspect.go
	}
	orderCmd = &cobra.Command{
		Use:   "order",
		Short: "Print the order apps are deployed in",
		Args:  cobra.NoArgs,
		RunE:  runOrder, // Defined in cmd_inspect.go
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&workspaceDir, "dir", "C", ".", "Directory inside the workspace")
	pf.StringVar(&outputMode, "output", "", "Output mode: rich, plain or machine (default: detected)")
	pf.StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn or error")
	pf.StringVar(&traceMode, "trace", "", "Trace exporter: otlp, stdout or none (default: $OTEL_TRACES_EXPORTER)")
	pf.StringVar(&metricsFile, "metrics-file", "", "Write run metrics in Prometheus text format to this file")

	for _, c := range []*cobra.Command{deployCmd, undeployCmd, stateShowCmd, statePullCmd, statePushCmd, stateDiffCmd, secretsReportCmd} {
		c.Flags().StringVarP(&stage, "stage", "s", "", "Stage to operate on, for example staging or production")
		_ = c.MarkFlagRequired("stage")
	}
	for _, c := range []*cobra.Command{deployCmd, secretsReportCmd, orderCmd} {
		c.Flags().StringSliceVar(&appList, "apps", nil, "Restrict to these apps (comma separated)")
		c.Flags().StringVar(&snifferCmd, "sniffer", "", "Command that prints the environment variables each app reads, as JSON")
	}

	deployCmd.Flags().BoolVar(&syncState, "sync", false, "Pull remote state before the run and push it afterwards")
	deployCmd.Flags().StringVar(&imageTag, "tag", "", "Image tag to deploy (default: the stage name)")
	deployCmd.Flags().BoolVar(&allowMissing, "allow-missing", false, "Start even if backend apps have unresolved secrets")

	undeployCmd.Flags().BoolVar(&deleteProject, "delete-project", false, "Also delete the control-plane project")
	undeployCmd.Flags().BoolVar(&deleteCloudBackups, "delete-cloud-backups", false, "Also delete the backup bucket and its identity")
	undeployCmd.Flags().BoolVar(&syncState, "sync", false, "Pull remote state before the teardown and push it afterwards")

	statePushCmd.Flags().BoolVar(&forcePush, "force", false, "Push even if the remote copy has entries the local one lacks")

	rootCmd.AddCommand(deployCmd, undeployCmd, stateCmd, secretsCmd, orderCmd)
	stateCmd.AddCommand(stateShowCmd, statePullCmd, statePushCmd, stateDiffCmd)
	secretsCmd.AddCommand(secretsReportCmd)
}
