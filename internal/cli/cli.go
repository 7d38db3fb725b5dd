package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/blockflow/blockflow/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("blockflow", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
blockflow - a concurrent workflow execution engine.

Usage:
  blockflow [options] [WORKFLOW_PATH]

Arguments:
  WORKFLOW_PATH
    Path to a workflow definition (.json, .yaml, or .hcl).

Options:
`)
		flagSet.PrintDefaults()
	}

	workflowFlag := flagSet.String("workflow", "", "Path to the workflow definition.")
	wFlag := flagSet.String("w", "", "Path to the workflow definition (shorthand).")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 4, "Number of concurrent block executions.")
	fanoutFlag := flagSet.Int("fanout", 8, "Maximum concurrent parallel-block instances.")
	blockTimeoutFlag := flagSet.Duration("block-timeout", 0, "Default timeout for blocks that declare none. 0 disables it.")
	httpTimeoutFlag := flagSet.Duration("http-timeout", 30*time.Second, "Timeout for outbound HTTP tool calls.")
	diagPortFlag := flagSet.Int("diagnostics-port", 0, "Port for the /health and /metrics HTTP server. 0 is disabled.")
	streamURLFlag := flagSet.String("stream-url", "", "socket.io endpoint streaming run telemetry. Empty is disabled.")

	vars := make(map[string]any)
	flagSet.Func("var", "Workflow variable as key=value, repeatable. Values parse as JSON when possible.", func(s string) error {
		key, raw, ok := strings.Cut(s, "=")
		if !ok || key == "" {
			return fmt.Errorf("expected key=value, got %q", s)
		}
		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			parsed = raw
		}
		vars[key] = parsed
		return nil
	})

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	path := ""
	if *workflowFlag != "" {
		path = *workflowFlag
	} else if *wFlag != "" {
		path = *wFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}

	if path == "" {
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	config, err := app.NewConfig(app.Config{
		WorkflowPath:    path,
		Variables:       vars,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		Workers:         *workersFlag,
		Fanout:          *fanoutFlag,
		BlockTimeout:    *blockTimeoutFlag,
		HTTPTimeout:     *httpTimeoutFlag,
		DiagnosticsPort: *diagPortFlag,
		StreamURL:       *streamURLFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	return config, false, nil
}
