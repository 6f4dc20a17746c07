// Package support holds the godog step definitions for the CLI feature
// suite. Commands run in-process against a fresh command tree.
package support

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/cardrectify/cmd/cardrectify/cmd"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	// Command execution state
	LastCommand  string
	LastOutput   string
	LastStderr   string
	LastError    error
	LastExitCode int

	// Scenario working directory; commands run inside it.
	WorkDir string

	// HTTP state
	HTTPTestServer     *HTTPTestServerWrapper
	LastHTTPStatusCode int
	LastHTTPResponse   string
	LastHTTPHeaders    map[string]string

	savedEnv map[string]*string
}

// NewTestContext creates a scenario context with its own temp directory.
func NewTestContext() (*TestContext, error) {
	dir, err := os.MkdirTemp("", "cardrectify-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	tc := &TestContext{WorkDir: dir, savedEnv: map[string]*string{}}

	// Keep the user's own config files out of the run.
	tc.SetEnv("HOME", dir)
	tc.SetEnv("XDG_CONFIG_HOME", dir)
	return tc, nil
}

// Path resolves name inside the scenario directory.
func (tc *TestContext) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(tc.WorkDir, name)
}

// SetEnv sets a process environment variable until Cleanup.
func (tc *TestContext) SetEnv(name, value string) {
	if _, ok := tc.savedEnv[name]; !ok {
		if old, set := os.LookupEnv(name); set {
			tc.savedEnv[name] = &old
		} else {
			tc.savedEnv[name] = nil
		}
	}
	_ = os.Setenv(name, value)
}

// RunCLI executes a command line such as "cardrectify rectify a.png" inside
// WorkDir and records its output and exit code.
func (tc *TestContext) RunCLI(line string) error {
	args := strings.Fields(line)
	if len(args) > 0 && args[0] == "cardrectify" {
		args = args[1:]
	}

	prev, err := os.Getwd()
	if err != nil {
		return err
	}
	if err := os.Chdir(tc.WorkDir); err != nil {
		return err
	}
	defer func() { _ = os.Chdir(prev) }()

	var stdout, stderr bytes.Buffer
	root := cmd.NewRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	runErr := root.Execute()

	tc.LastCommand = line
	tc.LastOutput = stdout.String()
	tc.LastStderr = stderr.String()
	tc.LastError = runErr
	tc.LastExitCode = cmd.ExitCode(runErr)
	return nil
}

// Cleanup stops the server, restores the environment and removes WorkDir.
func (tc *TestContext) Cleanup() error {
	var errs []error
	if tc.HTTPTestServer != nil {
		tc.HTTPTestServer.Close()
		tc.HTTPTestServer = nil
	}
	for name, old := range tc.savedEnv {
		if old == nil {
			_ = os.Unsetenv(name)
		} else {
			_ = os.Setenv(name, *old)
		}
	}
	if err := os.RemoveAll(tc.WorkDir); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove temp directory %s: %w", tc.WorkDir, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}
