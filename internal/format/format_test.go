package format

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"evidencevault/internal/models"
)

func TestYAMLFormatterUsesYAMLTags(t *testing.T) {
	ev := models.CustodyEvent{
		EventID:    "e1",
		EvidenceID: "ev1",
		Sequence:   1,
		Action:     models.ActionUpload,
		Outcome:    models.OutcomeSucceeded,
		ActorID:    "u1",
		ActorRole:  "UPLOADER",
		Timestamp:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		EventHash:  "abc",
	}

	var buf bytes.Buffer
	if err := (YAMLFormatter{}).Write(&buf, []models.CustodyEvent{ev}); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"evidence_id: ev1", "action: UPLOAD", "event_hash: abc", "sequence: 1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "prev_hash") {
		t.Fatalf("empty prev_hash should be omitted:\n%s", out)
	}
}

func TestJSONFormatterIndent(t *testing.T) {
	var buf bytes.Buffer
	if err := (JSONFormatter{Indent: true}).Write(&buf, map[string]int{"a": 1}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if buf.String() != "{\n  \"a\": 1\n}\n" {
		t.Fatalf("unexpected json output %q", buf.String())
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"", "json", "JSON", "yaml", "yml"} {
		if _, err := ByName(name); err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
	}
	if _, err := ByName("xml"); err == nil {
		t.Fatal("expected error for xml")
	}
}
