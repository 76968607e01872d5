package pipeline

import (
	"context"
	"encoding/json"
	"testing"
)

func TestExecutor_ParsesJSONOutput(t *testing.T) {
	exec := NewExecutor()

	res, err := exec.Run(context.Background(), "echo", `{"address":"bitcoincash:derived"}`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var payload struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(res.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Address != "bitcoincash:derived" {
		t.Errorf("unexpected address %q", payload.Address)
	}
}

func TestExecutor_StripsControlCharacters(t *testing.T) {
	exec := NewExecutor()

	// printf emits a tab and a carriage return inside the JSON document.
	res, err := exec.Run(context.Background(), "printf", "{\"valid\":\ttrue\r}")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if string(res.Payload) != `{"valid":true}` {
		t.Errorf("unexpected payload %q", res.Payload)
	}
}

func TestExecutor_NonZeroExit(t *testing.T) {
	exec := NewExecutor()

	res, err := exec.Run(context.Background(), "sh", "-c", "echo boom >&2; exit 3")
	if err == nil {
		t.Fatalf("expected error for non-zero exit")
	}
	if res.Stderr == "" {
		t.Errorf("expected stderr to be captured")
	}
}

func TestExecutor_InvalidJSON(t *testing.T) {
	exec := NewExecutor()

	if _, err := exec.Run(context.Background(), "echo", "not json at all"); err == nil {
		t.Fatalf("expected error for unparseable output")
	}
}

func TestExecutor_EmptyOutput(t *testing.T) {
	exec := NewExecutor()

	res, err := exec.Run(context.Background(), "true")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Payload != nil {
		t.Errorf("expected nil payload for empty stdout, got %q", res.Payload)
	}
}
