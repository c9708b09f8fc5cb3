package trace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open trace log: %v", err)
	}
	return l, path
}

func TestSequentialAppendsProduceValidChain(t *testing.T) {
	l, path := newTestLog(t)

	for i := 1; i <= 5; i++ {
		if err := l.Append("run-abc", i, "fraud_score", true, 12, map[string]any{"tally": 30}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	l.Close()

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected valid chain, got error at line %d: %s", result.ErrorLine, result.Error)
	}
	if result.Lines != 5 {
		t.Fatalf("expected 5 lines, got %d", result.Lines)
	}
}

func TestVerifyDetectsTamperedEntry(t *testing.T) {
	l, path := newTestLog(t)

	for i := 1; i <= 3; i++ {
		if err := l.Append("run-abc", i, "kb_merchant", true, 4, nil); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(data), `"ok":true`, `"ok":false`, 1)
	if tampered == string(data) {
		t.Fatal("tamper substitution did not apply")
	}
	if err := os.WriteFile(path, []byte(tampered), 0600); err != nil {
		t.Fatal(err)
	}

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected tampered chain to fail verification")
	}
	if result.ErrorLine != 2 {
		t.Errorf("expected break at line 2, got %d (%s)", result.ErrorLine, result.Error)
	}
}

func TestOpenRecoversChainTail(t *testing.T) {
	l, path := newTestLog(t)
	if err := l.Append("run-abc", 1, "load_context", true, 0, nil); err != nil {
		t.Fatal(err)
	}
	l.Close()

	// Reopen and continue the chain.
	l2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := l2.Append("run-abc", 2, "fraud_score", true, 9, nil); err != nil {
		t.Fatal(err)
	}
	l2.Close()

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("chain broken after reopen: %s (line %d)", result.Error, result.ErrorLine)
	}
	if result.Lines != 2 {
		t.Fatalf("expected 2 lines, got %d", result.Lines)
	}
}

func TestFirstEntryReferencesGenesis(t *testing.T) {
	l, path := newTestLog(t)
	if err := l.Append("run-abc", 1, "load_context", true, 0, nil); err != nil {
		t.Fatal(err)
	}
	l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var entry Entry
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry); err != nil {
		t.Fatal(err)
	}
	if entry.PrevHash != GenesisHash {
		t.Errorf("first entry prev_hash = %q, want genesis", entry.PrevHash)
	}
}

func TestMemoryRecorderKeepsPerRunOrder(t *testing.T) {
	m := NewMemory()
	for i := 1; i <= 4; i++ {
		if err := m.Append("run-1", i, "step", true, 1, nil); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.Append("run-2", 1, "step", true, 1, nil); err != nil {
		t.Fatal(err)
	}

	entries := m.Entries("run-1")
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries for run-1, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Seq != i+1 {
			t.Errorf("entry %d has seq %d", i, e.Seq)
		}
	}
	if len(m.Entries("run-2")) != 1 {
		t.Error("run-2 entries leaked into run-1 or lost")
	}
}
