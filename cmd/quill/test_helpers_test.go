package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"quill/internal/config"
	"quill/internal/daemonctl"
	"quill/internal/daemonrun"
	"quill/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	socketPath string
}

// setupOfflineEnv writes a config file without starting a process.
func setupOfflineEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	var cfgPath string
	opts = append(opts, testsupport.WithConfigFile(&cfgPath))
	cfg := testsupport.NewConfig(t, opts...)
	return &cliTestEnv{cfg: cfg, configPath: cfgPath, socketPath: cfg.SocketPath()}
}

// setupCLITestEnv runs quill in-process and stops it when the test ends.
func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	env := setupOfflineEnv(t, opts...)
	env.cfg.Logging.Level = "error"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- daemonrun.Run(ctx, env.cfg, daemonrun.Options{ConfigPath: env.configPath})
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("run: %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Error("quill did not stop")
		}
	})

	client, err := daemonctl.WaitForClient(ctx, env.socketPath, 5*time.Second)
	if err != nil {
		t.Fatalf("wait for quill: %v", err)
	}
	_ = client.Close()
	return env
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	full := append([]string{"--config", env.configPath, "--socket", env.socketPath}, args...)
	cmd.SetArgs(full)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(bytes.NewReader(nil))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func mustRunCLI(t *testing.T, env *cliTestEnv, args ...string) string {
	t.Helper()
	out, stderr, err := runCLI(t, env, args...)
	if err != nil {
		t.Fatalf("quill %v: %v (stderr %q)", args, err, stderr)
	}
	return out
}

func reloadConfig(t *testing.T, env *cliTestEnv) *config.Config {
	t.Helper()
	cfg, _, _, err := config.Load(env.configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}
