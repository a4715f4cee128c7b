package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/re-cinq/patchwash/internal/attempt"
	"github.com/re-cinq/patchwash/internal/backend"
	"github.com/re-cinq/patchwash/internal/bench"
	"github.com/re-cinq/patchwash/internal/config"
	"github.com/re-cinq/patchwash/internal/dataset"
	"github.com/re-cinq/patchwash/internal/graphrag"
	"github.com/re-cinq/patchwash/internal/logx"
	"github.com/re-cinq/patchwash/internal/orchestrator"
)

var (
	runDatasetPath   string
	runLimit         int
	runInstanceIDs   []string
	runAgentBackend  string
	runAgentCmd      string
	runAgentArgs     []string
	runScriptedTurns []string
)

func init() {
	runCmd.Flags().StringVar(&runDatasetPath, "dataset", "", "Path to a local JSON/JSONL dataset cache")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "Maximum number of instances to process (0 = all)")
	runCmd.Flags().StringSliceVar(&runInstanceIDs, "instance", nil, "Run only these instance IDs (repeatable)")
	runCmd.Flags().StringVar(&runAgentBackend, "agent-backend", "ollama", "Agent backend: subprocess, ollama, or scripted")
	runCmd.Flags().StringVar(&runAgentCmd, "agent-command", "", "External agent CLI to invoke per turn (subprocess backend)")
	runCmd.Flags().StringSliceVar(&runAgentArgs, "agent-arg", nil, "Extra argument to pass the agent CLI (repeatable)")
	runCmd.Flags().StringSliceVar(&runScriptedTurns, "scripted-turn", nil, "Fixed assistant turn to replay (scripted backend, repeatable)")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the attempt loop over a dataset and write a predictions file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRun(cmd.Context())
	},
}

func runRun(ctx context.Context) error {
	if runDatasetPath == "" {
		return fmt.Errorf("--dataset is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	level := "info"
	if verbose {
		level = "debug"
	}
	root := logx.New(os.Stderr, level)

	runID := uuid.New().String()
	if err := os.MkdirAll(cfg.PredictionsDir, 0o755); err != nil {
		return fmt.Errorf("creating predictions dir: %w", err)
	}
	predPath := filepath.Join(cfg.PredictionsDir, runID+".jsonl")
	predFile, err := os.Create(predPath)
	if err != nil {
		return fmt.Errorf("creating predictions file: %w", err)
	}
	defer predFile.Close()
	enc := json.NewEncoder(predFile)

	src := dataset.NewCachedSource(runDatasetPath)
	tasks, err := src.Select(runInstanceIDs)
	if err != nil {
		return &bench.ConfigError{Err: err}
	}
	if runLimit > 0 && len(tasks) > runLimit {
		tasks = tasks[:runLimit]
	}

	b, err := buildBackend()
	if err != nil {
		return err
	}

	var gr *graphrag.Client
	if cfg.GraphRAGEnabled {
		gr = graphrag.New(cfg.GraphRAGServerURL)
	}

	root.Info("starting run", "run_id", runID, "instances", len(tasks))

	for _, task := range tasks {
		instLog, logFile, err := root.ForInstance(cfg.LogDir, task.InstanceID)
		if err != nil {
			root.Error("opening instance log", "instance_id", task.InstanceID, "err", err)
			continue
		}

		ctrl := &attempt.Controller{Config: cfg, Backend: b, GraphRAG: gr, Log: instLog}
		orch := &orchestrator.Orchestrator{Attempt: ctrl, Config: cfg, Log: instLog}

		pred := orch.Run(ctx, task)
		if err := enc.Encode(pred); err != nil {
			instLog.Error("writing prediction", "err", err)
		}
		logFile.Close()

		root.Info("instance complete", "instance_id", task.InstanceID, "attempts", pred.AttemptsUsed, "clean_resolution", pred.CleanResolution)

		if ctx.Err() != nil {
			break
		}
	}

	root.Info("run complete", "run_id", runID, "predictions", predPath)
	return nil
}

func buildBackend() (backend.Backend, error) {
	switch runAgentBackend {
	case "subprocess":
		if runAgentCmd == "" {
			return nil, fmt.Errorf("--agent-command is required for the subprocess backend")
		}
		return backend.NewSubprocess(backend.SubprocessConfig{Command: runAgentCmd, Args: runAgentArgs}), nil
	case "scripted":
		if len(runScriptedTurns) == 0 {
			return nil, fmt.Errorf("--scripted-turn is required for the scripted backend")
		}
		return backend.NewScripted(runScriptedTurns), nil
	case "ollama", "":
		return backend.NewOllama(backend.OllamaConfig{Model: "qwen2.5-coder"}), nil
	default:
		return nil, fmt.Errorf("unknown agent backend %q", runAgentBackend)
	}
}
