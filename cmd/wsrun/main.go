// wsrun - command-line runner for declarative WebSocket test steps
package main

import (
	"fmt"
	"os"

	"github.com/stepwire/stepwire/pkg/cli"
)

// Build-time variables set via ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Command represents a registered CLI command.
type Command struct {
	Name  string
	Short string
	Run   func(args []string) error
}

func buildRegistry() []*Command {
	return []*Command{
		{Name: "run", Short: "Run the steps in a collection file", Run: cli.RunRun},
		{Name: "version", Short: "Show version information", Run: runVersion},
	}
}

func runVersion(args []string) error {
	fmt.Printf("wsrun %s (commit %s, built %s)\n", Version, Commit, BuildDate)
	return nil
}

func printUsage(commands []*Command) {
	fmt.Print("Usage: wsrun <command> [flags]\n\nCommands:\n")
	for _, cmd := range commands {
		fmt.Printf("  %-10s %s\n", cmd.Name, cmd.Short)
	}
	fmt.Print("\nRun 'wsrun <command> --help' for more information.\n")
}

func main() {
	commands := buildRegistry()

	if len(os.Args) < 2 {
		printUsage(commands)
		os.Exit(1)
	}

	name := os.Args[1]
	if name == "help" || name == "--help" || name == "-h" {
		printUsage(commands)
		return
	}

	for _, cmd := range commands {
		if cmd.Name == name {
			if err := cmd.Run(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", name)
	printUsage(commands)
	os.Exit(1)
}
