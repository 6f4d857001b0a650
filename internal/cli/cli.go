package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/varaku1012/quantumwala/internal/http"
	"github.com/varaku1012/quantumwala/internal/log"
	internal_storage "github.com/varaku1012/quantumwala/internal/storage"
	"github.com/varaku1012/quantumwala/pkg/executor"
	"github.com/varaku1012/quantumwala/pkg/graph"
	"github.com/varaku1012/quantumwala/pkg/models"
	"github.com/varaku1012/quantumwala/pkg/report"
	"github.com/varaku1012/quantumwala/pkg/scheduler"
	"github.com/varaku1012/quantumwala/pkg/spec"
	"github.com/varaku1012/quantumwala/pkg/storage"
)

// Exit codes for the run command.
const (
	ExitCompleted = 0
	ExitFailed    = 1
	ExitAborted   = 2
	ExitSpecError = 3
)

func SetupCLI(rootCmd *cobra.Command) {
	runCmd := &cobra.Command{
		Use:   "run [spec-file]",
		Short: "Run a workflow from a task spec file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runWorkflow(cmd, args[0]))
		},
	}
	runCmd.Flags().Int("max-concurrent", 4, "Maximum number of tasks running at once")
	runCmd.Flags().Int("max-attempts", models.DefaultMaxAttempts, "Default retry ceiling for tasks that declare no max_attempts")
	runCmd.Flags().Float64("cpu", 0, "Total CPU units available (defaults to max-concurrent)")
	runCmd.Flags().Float64("memory", 0, "Total memory units available (defaults to max-concurrent)")
	runCmd.Flags().Duration("task-timeout", scheduler.DefaultTaskTimeout, "Default per-attempt deadline")
	runCmd.Flags().Duration("abort-after", 0, "Abort the run after this duration (0 = never)")
	runCmd.Flags().StringSlice("allow", nil, "Binaries command tasks may execute")
	runCmd.Flags().String("report-file", "", "Write the final JSON report to this path")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all workflow runs",
		Run: func(cmd *cobra.Command, args []string) {
			store := storeFromFlags(cmd)
			defer store.Close()
			listRuns(store)
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show the execution record log for a run",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := storeFromFlags(cmd)
			defer store.Close()
			showHistory(store, args[0])
		},
	}

	reportCmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Print the JSON summary report for a run",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := storeFromFlags(cmd)
			defer store.Close()
			printReport(store, args[0])
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve run state over HTTP for monitoring",
		Run: func(cmd *cobra.Command, args []string) {
			port, _ := cmd.Flags().GetString("port")
			store := storeFromFlags(cmd)
			defer store.Close()
			if err := http.StartServer(port, store); err != nil {
				log.GetLogger().Errorf("Server failed: %v", err)
				os.Exit(1)
			}
		},
	}
	serveCmd.Flags().String("port", "8080", "Port to listen on")

	rootCmd.AddCommand(runCmd, listCmd, historyCmd, reportCmd, serveCmd)
}

func runWorkflow(cmd *cobra.Command, specPath string) int {
	logger := log.GetLogger()

	doc, err := spec.Load(specPath)
	if err != nil {
		logger.Errorf("Failed to load spec: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitSpecError
	}

	maxAttempts, _ := cmd.Flags().GetInt("max-attempts")
	doc.ApplyDefaultMaxAttempts(maxAttempts)

	g, err := graph.Build(doc.ModelTasks())
	if err != nil {
		logger.Errorf("Failed to build task graph: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitSpecError
	}

	maxConcurrent, _ := cmd.Flags().GetInt("max-concurrent")
	cpu, _ := cmd.Flags().GetFloat64("cpu")
	memory, _ := cmd.Flags().GetFloat64("memory")
	taskTimeout, _ := cmd.Flags().GetDuration("task-timeout")
	abortAfter, _ := cmd.Flags().GetDuration("abort-after")
	allowed, _ := cmd.Flags().GetStringSlice("allow")
	reportFile, _ := cmd.Flags().GetString("report-file")

	store := storeFromFlags(cmd)
	defer store.Close()

	registry := executor.NewRegistry()
	registry.Register("noop", executor.NoopExecutor{})
	registry.Register("command", executor.CommandExecutor{Allowed: allowed})

	sched, err := scheduler.New(doc.Name, g, store, registry, logger, scheduler.Config{
		MaxConcurrent: maxConcurrent,
		TotalCPU:      cpu,
		TotalMemory:   memory,
		TaskTimeout:   taskTimeout,
	})
	if err != nil {
		logger.Errorf("Failed to build scheduler: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitSpecError
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if abortAfter > 0 {
		ctx, cancel = context.WithTimeout(ctx, abortAfter)
		defer cancel()
	}

	// SIGINT/SIGTERM request a graceful abort: in-flight tasks get the grace
	// period before their contexts are cancelled.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		sched.Abort()
	}()

	run, err := sched.Run(ctx)
	if err != nil {
		logger.Errorf("Workflow run %s failed: %v", run.ID, err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}

	rep, repErr := report.Build(store, run.ID)
	if repErr != nil {
		logger.Errorf("Failed to build report: %v", repErr)
	} else {
		printTaskSummary(os.Stdout, rep)
		if reportFile != "" {
			if err := report.WriteJSON(rep, reportFile); err != nil {
				logger.Errorf("Failed to write report: %v", err)
			}
		}
	}

	fmt.Fprintf(os.Stdout, "Workflow %s finished: %s\n", run.ID, run.Status)
	switch run.Status {
	case models.CompletedWorkflowStatus:
		return ExitCompleted
	case models.AbortedWorkflowStatus:
		return ExitAborted
	default:
		return ExitFailed
	}
}

func printTaskSummary(w io.Writer, rep report.Report) {
	for _, t := range rep.Tasks {
		line := fmt.Sprintf("- %s: %s", t.TaskID, t.Status)
		if t.Attempts > 1 {
			line += fmt.Sprintf(" (%d attempts)", t.Attempts)
		}
		if t.LastError != "" {
			line += fmt.Sprintf(" - %s", t.LastError)
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "Completion: %.0f%%\n", rep.CompletionPercent)
}

func listRuns(store storage.Store) {
	runs, err := store.ListRuns()
	if err != nil {
		log.GetLogger().Errorf("Failed to list runs: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to list runs: %v\n", err)
		os.Exit(1)
	}
	if len(runs) == 0 {
		fmt.Fprintf(os.Stdout, "No workflow runs found.\n")
		return
	}
	fmt.Fprintf(os.Stdout, "Workflow runs:\n")
	for _, run := range runs {
		fmt.Fprintf(os.Stdout, "- ID: %s, Name: %s, Status: %s, Started: %s\n",
			run.ID, run.Name, run.Status, run.StartedAt.Format(time.RFC3339))
	}
}

func showHistory(store storage.Store, runID string) {
	records, err := store.History(runID)
	if err != nil {
		log.GetLogger().Errorf("Failed to load history: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to load history: %v\n", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Fprintf(os.Stdout, "No records for run %s.\n", runID)
		return
	}
	for _, rec := range records {
		line := fmt.Sprintf("- %s attempt %d: %s", rec.TaskID, rec.Attempt, rec.Status)
		if rec.Error != "" {
			line += fmt.Sprintf(" (%s)", rec.Error)
		}
		fmt.Fprintln(os.Stdout, line)
	}
}

func printReport(store storage.Store, runID string) {
	rep, err := report.Build(store, runID)
	if err != nil {
		log.GetLogger().Errorf("Failed to build report: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to build report: %v\n", err)
		os.Exit(1)
	}
	if err := report.WriteJSONTo(rep, os.Stdout); err != nil {
		log.GetLogger().Errorf("Failed to print report: %v", err)
		os.Exit(1)
	}
}

// storeFromFlags picks the Postgres store when --db is set, otherwise the
// file-backed store rooted at --state-dir.
func storeFromFlags(cmd *cobra.Command) storage.Store {
	dbConnStr, _ := cmd.Flags().GetString("db")
	stateDir, _ := cmd.Flags().GetString("state-dir")
	if dbConnStr != "" {
		store, err := internal_storage.InitStore(dbConnStr)
		if err != nil {
			log.GetLogger().Errorf("Failed to initialize store: %v", err)
			fmt.Fprintf(os.Stderr, "Error: failed to initialize store: %v\n", err)
			os.Exit(1)
		}
		return store
	}
	store, err := storage.NewFileStore(stateDir)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize store: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to initialize store: %v\n", err)
		os.Exit(1)
	}
	return store
}
