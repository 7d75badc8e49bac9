package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agentanalytics/agentanalytics/internal/transcript"
)

func TestReader_ReadNewLines_AdvancesOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	if err := os.WriteFile(path, []byte(`{"type":"user","uuid":"u1"}`+"\n"+`{"type":"assistant","uuid":"a1"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewReader(path, 0)
	lines, err := r.ReadNewLines()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if !lines[0].Ok || lines[0].Entry.UUID != "u1" {
		t.Fatalf("line 0 = %+v", lines[0])
	}
	if !lines[1].Ok || lines[1].Entry.UUID != "a1" {
		t.Fatalf("line 1 = %+v", lines[1])
	}
	if r.Offset() == 0 {
		t.Fatalf("expected offset to advance")
	}

	// second call with no new data yields nothing
	again, err := r.ReadNewLines()
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Fatalf("got %d lines on re-read, want 0", len(again))
	}
}

func TestReader_PartialTrailingLineNotEmitted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	if err := os.WriteFile(path, []byte(`{"type":"user","uuid":"u1"}`+"\n"+`{"type":"assistant"`), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewReader(path, 0)
	lines, err := r.ReadNewLines()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1 (partial trailing line withheld)", len(lines))
	}

	// append the terminator and more data; the partial line should now be
	// picked up from where it was left off.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`,"extra":1}` + "\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	more, err := r.ReadNewLines()
	if err != nil {
		t.Fatal(err)
	}
	if len(more) != 1 || !more[0].Ok || more[0].Entry.Kind != transcript.KindAssistant {
		t.Fatalf("got %+v", more)
	}
}

func TestReader_SkipsMalformedAndEmptyLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	content := `{"type":"user","uuid":"u1"}` + "\n" + "\n" + "not json" + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewReader(path, 0)
	lines, err := r.ReadNewLines()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if !lines[0].Ok {
		t.Fatalf("line 0 should parse")
	}
	if lines[1].Ok || lines[1].Skip != "empty_line" {
		t.Fatalf("line 1 = %+v, want empty_line skip", lines[1])
	}
	if lines[2].Ok || lines[2].Skip != "malformed_json" {
		t.Fatalf("line 2 = %+v, want malformed_json skip", lines[2])
	}
}

func TestReader_Reset(t *testing.T) {
	r := NewReader("/tmp/whatever.jsonl", 128)
	r.Reset()
	if r.Offset() != 0 {
		t.Fatalf("offset after reset = %d, want 0", r.Offset())
	}
}
