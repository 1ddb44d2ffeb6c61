package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aosanya/agentorch/internal/agentregistry"
	"github.com/aosanya/agentorch/internal/api"
	"github.com/aosanya/agentorch/internal/config"
	"github.com/aosanya/agentorch/internal/database"
	"github.com/aosanya/agentorch/internal/dispatch"
	"github.com/aosanya/agentorch/internal/executor"
	"github.com/aosanya/agentorch/internal/task"
	"github.com/aosanya/agentorch/internal/workflow"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "config.yaml", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("agentorch\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Git Commit: %s\n", gitCommit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.WithError(err).Warn("invalid log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	logrus.WithFields(logrus.Fields{
		"version":    version,
		"build_time": buildTime,
		"git_commit": gitCommit,
	}).Info("starting agentorch")

	repo, err := buildTaskRepo(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("failed to initialize task repository")
	}

	registryCfg := agentregistry.Config{
		Offline:       time.Duration(cfg.Agent.OfflineTimeoutSeconds) * time.Second,
		Reclaim:       time.Duration(cfg.Agent.ReclaimTimeoutSeconds) * time.Second,
		SweepInterval: 5 * time.Second,
		MaxRetry:      3,
	}
	registry := agentregistry.New(registryCfg, repo)

	adapter := executor.NewShellAdapter()
	dispatcher := dispatch.New(registry, repo, adapter, dispatch.DefaultConfig())

	// The workflow engine delegates each Task-type step to the task queue
	// rather than executing it directly; it then blocks for the task's
	// terminal result, so a dependent step never proceeds on a task that
	// is still Pending/Assigned/InProgress.
	engine := workflow.NewEngine(workflow.StepDelegateFunc(func(ctx context.Context, step workflow.WorkflowStep, vars map[string]interface{}) (string, string, error) {
		repoPath, _ := step.Parameters["repo_path"].(string)
		if repoPath == "" {
			repoPath = "."
		}
		taskID, err := repo.Enqueue(ctx, step.Command, repoPath, 0)
		if err != nil {
			return "", "EnqueueFailed", err
		}
		return awaitTaskResult(ctx, repo, taskID)
	}), logrus.StandardLogger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry.Start(ctx)
	dispatcher.Start(ctx)

	logrus.WithFields(logrus.Fields{
		"offline_timeout_seconds": cfg.Agent.OfflineTimeoutSeconds,
		"reclaim_timeout_seconds": cfg.Agent.ReclaimTimeoutSeconds,
	}).Info("agent lifecycle sweeper and dispatcher running")

	apiCfg := api.DefaultServerConfig()
	apiCfg.Host = cfg.Server.Host
	apiCfg.Port = cfg.Server.Port
	apiCfg.ReadTimeout = time.Duration(cfg.Server.ReadTimeout) * time.Second
	apiCfg.WriteTimeout = time.Duration(cfg.Server.WriteTimeout) * time.Second

	if err := api.StartServer(ctx, apiCfg, &api.Services{Tasks: repo, Registry: registry, Engine: engine}); err != nil {
		logrus.WithError(err).Error("api server exited with an error")
	}

	logrus.Info("shutdown signal received, draining dispatcher")
	dispatcher.Stop()
	logrus.Info("agentorch stopped")
}

// awaitTaskResult polls taskID until it reaches a terminal status,
// returning its result as the step's result. This is what makes the
// workflow step delegate blocking rather than fire-and-forget: a
// dependent step only starts once the prior one's task has genuinely
// finished, not the instant it is enqueued.
func awaitTaskResult(ctx context.Context, repo task.Repo, taskID string) (string, string, error) {
	const pollInterval = 100 * time.Millisecond
	for {
		t, err := repo.Get(ctx, taskID)
		if err != nil {
			return "", "TaskLookupFailed", err
		}

		switch t.Status {
		case task.StatusCompleted:
			return t.Result, "", nil
		case task.StatusFailed:
			return "", "TaskFailed", fmt.Errorf("task %s failed: %s", taskID, t.Error)
		case task.StatusCancelled:
			return "", "TaskCancelled", fmt.Errorf("task %s was cancelled", taskID)
		}

		select {
		case <-ctx.Done():
			return "", "Cancelled", ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// buildTaskRepo selects a durable ArangoDB-backed repository when a
// database host is configured, falling back to the in-memory
// repository for local/dev runs.
func buildTaskRepo(cfg *config.Config) (task.Repo, error) {
	if cfg.Database.Host == "" {
		return task.NewMemRepository(cfg.Workflow.MaxRetryDefault), nil
	}

	client, err := database.NewArangoClient(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to arangodb: %w", err)
	}

	repo, err := task.NewRepository(client.Database(), cfg.Workflow.MaxRetryDefault)
	if err != nil {
		return nil, fmt.Errorf("initialize task repository: %w", err)
	}
	return repo, nil
}
