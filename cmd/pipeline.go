package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"guardctl/internal/config"
	"guardctl/internal/engine"
	"guardctl/internal/orchestrator"
	"guardctl/internal/platform"
	"guardctl/internal/preflight"
	"guardctl/internal/prepare"
	"guardctl/internal/supervisor"
	"guardctl/pkg/logging"
)

// For mocking in tests
var loadManifest = config.LoadManifest
var newEngine = func() engine.Engine { return engine.NewDockerEngine() }
var detectPlatform = platform.Detect
var preflightRequirements = preflight.DefaultRequirements

// signalContext returns a context cancelled on SIGINT/SIGTERM so an
// interrupt during the launch pipeline tears down whatever this run
// already started.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runPipeline is the full setup/start workflow: preflight validation,
// optional environment preparation, orchestration, and supervision.
// Preflight failures abort before anything is mutated.
func runPipeline(ctx context.Context, prepareEnv, detach bool) error {
	manifest, err := loadManifest()
	if err != nil {
		return err
	}

	eng := newEngine()
	if err := eng.CheckAvailable(ctx); err != nil {
		return err
	}

	// Preflight runs before any mutation; a missing artifact means we
	// would build against an incomplete configuration.
	if err := preflight.Validate(preflightRequirements()); err != nil {
		return err
	}

	if prepareEnv {
		preparer := prepare.New(detectPlatform(), manifest.EnvFile)
		warnings, err := preparer.Prepare()
		if err != nil {
			return err
		}
		for _, warning := range warnings {
			logging.Warn("Setup", "%s", warning)
		}
	}

	orch := orchestrator.New(eng, manifest, activeProfiles)
	if err := orch.Launch(ctx); err != nil {
		var startErr *orchestrator.StartError
		if errors.As(err, &startErr) && startErr.Logs != "" {
			fmt.Fprintln(os.Stderr, startErr.Logs)
		}
		return err
	}

	fmt.Println(orch.AccessReport())

	if detach {
		logging.Info("Setup", "Services launched; skipping supervision (--detach)")
		return nil
	}

	sup := supervisor.New(eng, manifest)
	sup.Supervise(ctx, orch.Started())
	logging.Info("Setup", "Supervising %d service(s); press Ctrl+C to stop supervising", len(orch.Started()))

	<-ctx.Done()
	sup.Wait()
	return nil
}
