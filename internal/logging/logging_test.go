package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"
)

func TestFor_EmitsBaseFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	Setup("debug", "test")

	For("chat").WithField("session_id", "s1").Info("created")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["service"] != serviceName || line["component"] != "chat" || line["environment"] != "test" {
		t.Fatalf("unexpected base fields: %v", line)
	}
	if line["session_id"] != "s1" || line["msg"] != "created" {
		t.Fatalf("unexpected payload: %v", line)
	}
}
