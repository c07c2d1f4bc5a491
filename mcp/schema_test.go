package mcp_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/toolbridge/toolbridge/mcp"
)

func TestRequestIDEchoedVerbatim(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
	}{
		{name: "number", in: `{"jsonrpc":"2.0","id":42,"method":"ping"}`, want: `"id":42`},
		{name: "string", in: `{"jsonrpc":"2.0","id":"abc-1","method":"ping"}`, want: `"id":"abc-1"`},
		{name: "negative number", in: `{"jsonrpc":"2.0","id":-7,"method":"ping"}`, want: `"id":-7`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg mcp.Message
			if err := json.Unmarshal([]byte(tc.in), &msg); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}

			out, err := json.Marshal(mcp.Message{
				JSONRPC: mcp.JSONRPCVersion,
				ID:      msg.ID,
				Result:  json.RawMessage(`{}`),
			})
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if got := string(out); !strings.Contains(got, tc.want) {
				t.Errorf("response %s does not contain %s", got, tc.want)
			}
		})
	}
}

func TestRequestIDValid(t *testing.T) {
	testCases := []struct {
		name  string
		raw   string
		valid bool
	}{
		{name: "string", raw: `"a"`, valid: true},
		{name: "number", raw: `7`, valid: true},
		{name: "float", raw: `1.5`, valid: true},
		{name: "object", raw: `{"a":1}`, valid: false},
		{name: "array", raw: `[1]`, valid: false},
		{name: "bool", raw: `true`, valid: false},
		{name: "null", raw: `null`, valid: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			id := mcp.RequestID(tc.raw)
			if got := id.Valid(); got != tc.valid {
				t.Errorf("Valid(%s) = %v, want %v", tc.raw, got, tc.valid)
			}
		})
	}
}

func TestRequestIDUnset(t *testing.T) {
	var msg mcp.Message
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.ID.IsSet() {
		t.Error("notification should have no id")
	}
}

func TestServerCapabilitiesOmitsAbsentGroups(t *testing.T) {
	out, err := json.Marshal(mcp.ServerCapabilities{
		Tools:   &mcp.ToolsCapability{ListChanged: true},
		Logging: &mcp.LoggingCapability{},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(out)
	if !strings.Contains(got, `"tools"`) || !strings.Contains(got, `"logging"`) {
		t.Errorf("expected tools and logging in %s", got)
	}
	if strings.Contains(got, `"resources"`) || strings.Contains(got, `"prompts"`) {
		t.Errorf("absent capability groups leaked into %s", got)
	}
}
