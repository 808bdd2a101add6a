package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTemperature(t *testing.T) {
	a, b := Temperature(0.2), Temperature(0.2)
	if a == b {
		t.Fatal("Temperature must return a fresh pointer")
	}
	if *a != 0.2 {
		t.Errorf("*a = %v", *a)
	}
}

func TestHistoryEntryJSON(t *testing.T) {
	e := HistoryEntry{
		ID:        "01J0000000000000000000000",
		CreatedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		Mode:      ModeDictation,
		App:       AppContext{Name: "Mail", BundleID: "com.apple.mail"},
		RawText:   "um hello",
		FinalText: "Hello.",
	}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["mode"] != "dictation" {
		t.Errorf("mode = %v", m["mode"])
	}
	if m["final_text"] != "Hello." || m["raw_text"] != "um hello" {
		t.Errorf("texts = %v / %v", m["raw_text"], m["final_text"])
	}
	if _, ok := m["app"].(map[string]any); !ok {
		t.Errorf("app = %T, want object", m["app"])
	}
}

func TestChatMessagesKeepOrder(t *testing.T) {
	c := Chat{ID: "c1", Messages: []Message{
		{Role: RoleSystem, Content: "s"},
		{Role: RoleUser, Content: "u"},
		{Role: RoleAssistant, Content: "a"},
	}}
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Chat
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Messages) != 3 || got.Messages[0].Role != RoleSystem || got.Messages[2].Content != "a" {
		t.Errorf("messages = %+v", got.Messages)
	}
}
