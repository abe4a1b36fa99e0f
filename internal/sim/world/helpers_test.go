package world

import (
	"encoding/json"
	"testing"

	"twinforge/internal/protocol"
)

func mustUnmarshalState(t *testing.T, b []byte) protocol.StateMsg {
	t.Helper()
	var s protocol.StateMsg
	if err := json.Unmarshal(b, &s); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	return s
}
