package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// Script runners occasionally leak control characters into stdout; strip
// them before parsing.
var controlChars = regexp.MustCompile(`[\x00-\x1f\x7f-\x9f]`)

// Result is what a subprocess produced. Payload is nil when the process
// wrote nothing parseable to stdout.
type Result struct {
	Payload json.RawMessage
	Stderr  string
}

// Executor runs external script commands and parses their JSON output. The
// commands themselves are opaque to this core; only the payload shape
// matters to callers.
type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

// Run executes the command and returns its parsed stdout. A non-zero exit
// or unparseable output comes back as an error alongside whatever stderr
// the process produced; callers decide whether that aborts anything.
func (e *Executor) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stderr: stderr.String()}
	if err != nil {
		return res, fmt.Errorf("pipeline: run %s: %w", name, err)
	}

	clean := strings.TrimSpace(controlChars.ReplaceAllString(stdout.String(), ""))
	if clean == "" {
		return res, nil
	}
	if !json.Valid([]byte(clean)) {
		return res, fmt.Errorf("pipeline: %s produced invalid json", name)
	}

	res.Payload = json.RawMessage(clean)
	return res, nil
}
