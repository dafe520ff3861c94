package hermes

import (
	"testing"
)

func TestEncode(t *testing.T) {
	got, err := encode(map[string]string{"request_id": "r1", "text": "gym at 6"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(got) != `{"request_id":"r1","text":"gym at 6"}` {
		t.Errorf("unexpected payload %s", got)
	}
}

func TestEncode_RawBytes(t *testing.T) {
	raw := []byte(`{"already":"encoded"}`)
	got, err := encode(raw)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(got) != string(raw) {
		t.Errorf("raw bytes were re-encoded: %s", got)
	}
}

func TestEncode_Unmarshalable(t *testing.T) {
	if _, err := encode(make(chan int)); err == nil {
		t.Error("expected an error for a channel payload")
	}
}
