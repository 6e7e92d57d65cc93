package export

import (
	"strings"
	"testing"
)

func TestParseImportBatchWithMixedValidity(t *testing.T) {
	t.Parallel()

	payload := `{
		"exported_at": "2024-01-15T10:00:00Z",
		"version": 1,
		"count": 3,
		"conversations": [
			{
				"id": "c1", "title": "Good", "created_at": 1700000000000,
				"updated_at": 1700000000000,
				"messages": [{"id": "m1", "conversation_id": "c1", "role": "user", "content": "hi", "created_at": 1700000000000}]
			},
			{
				"title": "No id", "created_at": 1700000000000,
				"updated_at": 1700000000000, "messages": []
			},
			{
				"id": "c3", "title": "Bad timestamps", "created_at": "yesterday",
				"updated_at": 1700000000000, "messages": []
			}
		]
	}`

	result, err := ParseImport([]byte(payload))
	if err != nil {
		t.Fatalf("ParseImport() error: %v", err)
	}

	if len(result.Conversations) != 1 {
		t.Fatalf("imported %d conversations, want 1", len(result.Conversations))
	}
	if result.Conversations[0].ID != "c1" {
		t.Errorf("imported id = %q, want c1", result.Conversations[0].ID)
	}

	if len(result.Errors) != 2 {
		t.Fatalf("got %d item errors, want 2: %v", len(result.Errors), result.Errors)
	}
	if result.Errors[0].Index != 1 || !strings.Contains(result.Errors[0].Reason, "id") {
		t.Errorf("error[0] = %+v, want missing id at index 1", result.Errors[0])
	}
	if result.Errors[1].Index != 2 || !strings.Contains(result.Errors[1].Reason, "created_at") {
		t.Errorf("error[1] = %+v, want bad created_at at index 2", result.Errors[1])
	}
}

func TestParseImportRejectsInvalidMessageEntries(t *testing.T) {
	t.Parallel()

	payload := `{
		"id": "c1", "title": "Bad message", "created_at": 1, "updated_at": 2,
		"messages": [{"id": "m1", "conversation_id": "c1", "role": "wizard", "content": "hi", "created_at": 1}]
	}`

	result, err := ParseImport([]byte(payload))
	if err != nil {
		t.Fatalf("ParseImport() error: %v", err)
	}
	if len(result.Conversations) != 0 {
		t.Errorf("imported %d conversations, want 0", len(result.Conversations))
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0].Reason, "role") {
		t.Errorf("errors = %v, want a single role rejection", result.Errors)
	}
}

func TestParseImportMissingMessagesArray(t *testing.T) {
	t.Parallel()

	payload := `{"id": "c1", "title": "No messages key", "created_at": 1, "updated_at": 2}`

	result, err := ParseImport([]byte(payload))
	if err != nil {
		t.Fatalf("ParseImport() error: %v", err)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0].Reason, "messages") {
		t.Errorf("errors = %v, want a missing-messages rejection", result.Errors)
	}
}

func TestParseImportHardFailsOnUnparseableJSON(t *testing.T) {
	t.Parallel()

	if _, err := ParseImport([]byte(`{not json`)); err == nil {
		t.Fatal("ParseImport() error = nil, want parse failure")
	}
}

func TestParseImportEmptyBatch(t *testing.T) {
	t.Parallel()

	result, err := ParseImport([]byte(`{"conversations": []}`))
	if err != nil {
		t.Fatalf("ParseImport() error: %v", err)
	}
	if len(result.Conversations) != 0 || len(result.Errors) != 0 {
		t.Errorf("result = %+v, want empty", result)
	}
}
