package logging

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"
)

func TestLoggerWritesStructuredEntries(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("manager", &buf)

	log.Info("connected data source", Fields{"source": "users_db"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("entry is not JSON: %v", err)
	}
	if entry["level"] != "INFO" || entry["component"] != "manager" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["source"] != "users_db" {
		t.Fatalf("fields not preserved: %v", entry)
	}
	if entry["timestamp"] == "" {
		t.Fatal("missing timestamp")
	}
}

func TestWithComponentSharesWriter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("parent", &buf)
	child := log.WithComponent("child")

	child.Warn("something", nil)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("entry is not JSON: %v", err)
	}
	if entry["component"] != "child" {
		t.Fatalf("component = %v", entry["component"])
	}
}

func TestLoggerConcurrentUse(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("test", &buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Debug("tick", nil)
		}()
	}
	wg.Wait()

	dec := json.NewDecoder(&buf)
	count := 0
	for dec.More() {
		var entry map[string]any
		if err := dec.Decode(&entry); err != nil {
			t.Fatalf("interleaved write produced invalid JSON: %v", err)
		}
		count++
	}
	if count != 20 {
		t.Fatalf("expected 20 entries, got %d", count)
	}
}
