package cmd

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardctl/internal/config"
	"guardctl/internal/engine"
	"guardctl/internal/platform"
	"guardctl/internal/preflight"
)

// fakeEngine records operations so tests can assert what the pipeline
// touched.
type fakeEngine struct {
	checkErr error
	ops      []string
}

func (f *fakeEngine) CheckAvailable(ctx context.Context) error { return f.checkErr }

func (f *fakeEngine) Build(ctx context.Context, opts engine.BuildOptions) error {
	f.ops = append(f.ops, "build "+opts.Tag)
	return nil
}

func (f *fakeEngine) Run(ctx context.Context, opts engine.RunOptions) error {
	f.ops = append(f.ops, "run "+opts.Name)
	return nil
}

func (f *fakeEngine) Remove(ctx context.Context, name string) error {
	f.ops = append(f.ops, "remove "+name)
	return nil
}

func (f *fakeEngine) Restart(ctx context.Context, name string) error {
	f.ops = append(f.ops, "restart "+name)
	return nil
}

func (f *fakeEngine) Logs(ctx context.Context, name string, tail int) (string, error) {
	return "", nil
}

func (f *fakeEngine) FollowLogs(ctx context.Context, name string, tail int, out io.Writer) error {
	return nil
}

func (f *fakeEngine) State(ctx context.Context, name string) (engine.ContainerState, error) {
	return engine.StateRunning, nil
}

func (f *fakeEngine) Prune(ctx context.Context) error {
	f.ops = append(f.ops, "prune")
	return nil
}

func stubPipeline(t *testing.T, eng engine.Engine, manifest config.Manifest, reqs []preflight.Requirement) *atomic.Int64 {
	t.Helper()

	origLoad, origNew, origDetect, origReqs := loadManifest, newEngine, detectPlatform, preflightRequirements
	t.Cleanup(func() {
		loadManifest, newEngine, detectPlatform, preflightRequirements = origLoad, origNew, origDetect, origReqs
	})

	loadManifest = func() (config.Manifest, error) { return manifest, nil }
	newEngine = func() engine.Engine { return eng }
	preflightRequirements = func() []preflight.Requirement { return reqs }

	var detectCalls atomic.Int64
	detectPlatform = func() platform.Capabilities {
		detectCalls.Add(1)
		return platform.Detect()
	}
	return &detectCalls
}

func pipelineManifest(t *testing.T) config.Manifest {
	return config.Manifest{
		Project: "guard",
		EnvFile: filepath.Join(t.TempDir(), ".env"),
		Services: []config.ServiceDefinition{
			{Name: "xvfb", Image: "guard/xvfb:latest", Build: "./docker/xvfb"},
		},
	}
}

func TestPipelineAbortsBeforePrepareWhenPreflightFails(t *testing.T) {
	eng := &fakeEngine{}
	missing := []preflight.Requirement{
		{Path: filepath.Join(t.TempDir(), "Dockerfile"), Hint: "application image build file"},
	}
	detectCalls := stubPipeline(t, eng, pipelineManifest(t), missing)

	err := runPipeline(context.Background(), true, true)
	require.Error(t, err)

	var missingErr *preflight.MissingFilesError
	require.ErrorAs(t, err, &missingErr)

	assert.Equal(t, int64(0), detectCalls.Load(), "environment preparation must not start after a failed preflight")
	assert.Empty(t, eng.ops, "no container operations after a failed preflight")
}

func TestPipelineLaunchesWhenPreflightPasses(t *testing.T) {
	eng := &fakeEngine{}
	stubPipeline(t, eng, pipelineManifest(t), nil)

	err := runPipeline(context.Background(), false, true)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"remove guard-xvfb",
		"build guard/xvfb:latest",
		"run guard-xvfb",
	}, eng.ops)
}

func TestPipelinePropagatesEngineUnavailability(t *testing.T) {
	eng := &fakeEngine{checkErr: engine.ErrDaemonUnavailable}
	detectCalls := stubPipeline(t, eng, pipelineManifest(t), nil)

	err := runPipeline(context.Background(), true, true)
	require.ErrorIs(t, err, engine.ErrDaemonUnavailable)

	assert.Equal(t, int64(0), detectCalls.Load())
	assert.Empty(t, eng.ops)
}

func TestUnknownVerbFails(t *testing.T) {
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs([]string{"bogus"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs([]string{})
	})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestSelfUpdateRejectsDevelopmentBuilds(t *testing.T) {
	orig := rootCmd.Version
	t.Cleanup(func() { rootCmd.Version = orig })

	for _, version := range []string{"", "dev"} {
		rootCmd.Version = version
		err := runSelfUpdate(nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "development version")
	}
}
