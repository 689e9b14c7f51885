package audit

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestRecord(t *testing.T) {
	logger, hook := test.NewNullLogger()
	r := NewRecorder(logrus.NewEntry(logger))

	rec := r.Record(ActionSubmit, map[string]string{"destination": "Rome"}, "accepted", "abc", "mode=async")

	if rec.ID == "" {
		t.Error("record ID should not be empty")
	}
	if rec.SessionID != "abc" || rec.Outcome != "accepted" {
		t.Errorf("unexpected record: %+v", rec)
	}

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Data["action"] != ActionSubmit {
		t.Errorf("action field = %v, want %s", entry.Data["action"], ActionSubmit)
	}
	if entry.Data["inputs_hash"] != rec.InputsHash {
		t.Errorf("inputs_hash field = %v, want %s", entry.Data["inputs_hash"], rec.InputsHash)
	}
}

func TestHashInputs(t *testing.T) {
	a := hashInputs(map[string]int{"x": 1})
	b := hashInputs(map[string]int{"x": 1})
	c := hashInputs(map[string]int{"x": 2})

	if a != b {
		t.Error("equal inputs must hash equally")
	}
	if a == c {
		t.Error("different inputs must hash differently")
	}
	if len(a) != 64 {
		t.Errorf("expected hex sha256, got %q", a)
	}
	if hashInputs([]byte("raw")) == hashInputs("raw") {
		t.Error("raw bytes are hashed directly, not as a JSON string")
	}
	if hashInputs(make(chan int)) != "hash_error" {
		t.Error("unmarshalable inputs should report hash_error")
	}
}
