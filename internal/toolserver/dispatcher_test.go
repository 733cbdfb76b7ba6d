package toolserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/debugbridge/server/internal/adapter"
	"github.com/debugbridge/server/internal/bridgeconfig"
	"github.com/debugbridge/server/internal/eventbus"
	"github.com/debugbridge/server/internal/process"
	"github.com/debugbridge/server/internal/registry"
)

func newTestDispatcher() *Dispatcher {
	cfg := bridgeconfig.Default()
	return New(registry.New(cfg.ListenPortBase), process.NewSupervisor(), adapter.NewRegistry(), eventbus.New(), cfg, nil)
}

func decodeEnvelope(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode envelope: %v, raw=%s", err, raw)
	}
	return out
}

func TestUnknownToolReturnsInvalidParamsCode(t *testing.T) {
	d := newTestDispatcher()
	reply := decodeEnvelope(t, d.Dispatch(context.Background(), []byte(`{"tool":"nonexistent","params":{}}`)))

	if ok, _ := reply["ok"].(bool); ok {
		t.Fatalf("expected ok=false for unknown tool, got %+v", reply)
	}
	errObj, _ := reply["error"].(map[string]any)
	if errObj["code"] != "invalid-params" {
		t.Fatalf("expected invalid-params code, got %+v", errObj)
	}
}

func TestStartDebugSessionRequiresScriptPath(t *testing.T) {
	d := newTestDispatcher()
	reply := decodeEnvelope(t, d.Dispatch(context.Background(), []byte(`{"tool":"start_debug_session","params":{}}`)))

	if ok, _ := reply["ok"].(bool); ok {
		t.Fatalf("expected ok=false without script_path, got %+v", reply)
	}
}

func TestStopDebugSessionRequiresKnownSessionID(t *testing.T) {
	d := newTestDispatcher()
	reply := decodeEnvelope(t, d.Dispatch(context.Background(), []byte(`{"tool":"stop_debug_session","params":{"session_id":"missing"}}`)))

	if ok, _ := reply["ok"].(bool); ok {
		t.Fatalf("expected ok=false for unknown session id, got %+v", reply)
	}
}

func TestListDebugSessionsEmptyRegistry(t *testing.T) {
	d := newTestDispatcher()
	reply := decodeEnvelope(t, d.Dispatch(context.Background(), []byte(`{"tool":"list_debug_sessions","params":{}}`)))

	if ok, _ := reply["ok"].(bool); !ok {
		t.Fatalf("expected ok=true, got %+v", reply)
	}
	result, _ := reply["result"].(map[string]any)
	sessions, _ := result["sessions"].([]any)
	if len(sessions) != 0 {
		t.Fatalf("expected empty session list, got %+v", sessions)
	}
}

func TestCheckPythonSetupReturnsAvailabilityReport(t *testing.T) {
	d := newTestDispatcher()
	reply := decodeEnvelope(t, d.Dispatch(context.Background(), []byte(`{"tool":"check_python_setup","params":{}}`)))

	if ok, _ := reply["ok"].(bool); !ok {
		t.Fatalf("expected ok=true (the tool call itself always succeeds, availability is reported as data), got %+v", reply)
	}
	result, _ := reply["result"].(map[string]any)
	if _, hasAvailable := result["available"]; !hasAvailable {
		t.Fatalf("expected result to carry an available field, got %+v", result)
	}
}
