// Package cli implements the wsrun command handlers.
package cli

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/stepwire/stepwire/pkg/config"
	"github.com/stepwire/stepwire/pkg/logging"
	"github.com/stepwire/stepwire/pkg/step"
)

// varFlags collects repeatable -var key=value flags.
type varFlags map[string]any

func (v varFlags) String() string {
	parts := make([]string, 0, len(v))
	for name, value := range v {
		parts = append(parts, fmt.Sprintf("%s=%v", name, value))
	}
	return strings.Join(parts, ",")
}

func (v varFlags) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	v[name] = value
	return nil
}

// RunRun handles the run command: load a step collection and execute it.
func RunRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)

	baseURL := fs.String("base-url", "", "Base URL for relative step URLs (overrides the file)")
	logLevel := fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", "text", "Log format (text, json)")
	vars := varFlags{}
	fs.Var(vars, "var", "Session variables (key=value), repeatable")

	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: wsrun run [flags] <file>

Run the WebSocket test steps in a YAML or JSON collection file.

Arguments:
  file   Collection file (.yaml, .yml or .json)

Flags:
      --base-url    Base URL for relative step URLs (overrides the file)
      --log-level   Log level: debug, info, warn, error (default: info)
      --log-format  Log format: text, json (default: text)
      --var         Session variables (key=value), repeatable

Examples:
  wsrun run steps.yaml
  wsrun run --base-url ws://localhost:4280 --var token=abc steps.yaml
  wsrun run --log-level debug steps.yaml
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("collection file is required")
	}

	collection, err := config.LoadFromFile(fs.Arg(0))
	if err != nil {
		return err
	}
	if err := collection.Validate(); err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(*logLevel),
		Format: logging.ParseFormat(*logFormat),
	})

	base := collection.Config.BaseURL
	if *baseURL != "" {
		base = *baseURL
	}

	session := step.NewSession(
		step.WithBaseURL(base),
		step.WithVariables(collection.Config.Variables),
		step.WithVariables(vars),
		step.WithLogger(logger),
	)

	failed := 0
	for i := range collection.Steps {
		desc := &collection.Steps[i]
		result, err := session.RunStep(desc)
		if err != nil {
			return fmt.Errorf("step %q: %w", desc.Name, err)
		}
		if result.Success {
			fmt.Printf("PASS  %-30s %s (%s)\n", result.Name, result.StepType, result.Elapsed)
			continue
		}
		failed++
		fmt.Printf("FAIL  %-30s %s (%s)\n", result.Name, result.StepType, result.Elapsed)
		if result.FailureInfo != "" {
			for _, line := range strings.Split(result.FailureInfo, "\n") {
				fmt.Printf("      %s\n", line)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d steps failed", failed, len(collection.Steps))
	}
	fmt.Printf("%d steps passed\n", len(collection.Steps))
	return nil
}
