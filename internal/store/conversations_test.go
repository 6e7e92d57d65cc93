package store

import (
	"testing"
	"time"

	"github.com/companion-ai/companion-core/internal/model"
)

func TestCreateConversationDefaults(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	conv, err := s.CreateConversation("")
	if err != nil {
		t.Fatalf("CreateConversation() error: %v", err)
	}
	if conv.ID == "" {
		t.Error("CreateConversation() assigned empty id")
	}
	if conv.Title != model.DefaultTitle {
		t.Errorf("Title = %q, want placeholder %q", conv.Title, model.DefaultTitle)
	}
	if conv.CreatedAt != conv.UpdatedAt {
		t.Errorf("CreatedAt = %d, UpdatedAt = %d, want equal at creation", conv.CreatedAt, conv.UpdatedAt)
	}
	if conv.Pinned || conv.Archived {
		t.Error("new conversation must be unpinned and unarchived")
	}

	// A conversation with zero messages is valid.
	got, err := s.GetConversation(conv.ID)
	if err != nil {
		t.Fatalf("GetConversation() error: %v", err)
	}
	if got == nil || got.MessageCount != 0 {
		t.Fatalf("GetConversation() = %+v, want zero messages", got)
	}
}

func TestGetConversationMissing(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	got, err := s.GetConversation("no-such-id")
	if err != nil {
		t.Fatalf("GetConversation() error: %v", err)
	}
	if got != nil {
		t.Errorf("GetConversation() = %+v, want nil", got)
	}
}

func TestGetConversationDerivedFields(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	conv, _ := s.CreateConversation("derived")
	s.AddMessage(conv.ID, AddMessageParams{Role: model.RoleUser, Content: "question"})
	s.AddMessage(conv.ID, AddMessageParams{Role: model.RoleAssistant, Content: "answer"})

	got, err := s.GetConversation(conv.ID)
	if err != nil {
		t.Fatalf("GetConversation() error: %v", err)
	}
	if got.MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2", got.MessageCount)
	}
	if got.LastMessage != "answer" {
		t.Errorf("LastMessage = %q, want %q", got.LastMessage, "answer")
	}
	if got.UpdatedAt < got.CreatedAt {
		t.Errorf("UpdatedAt %d < CreatedAt %d", got.UpdatedAt, got.CreatedAt)
	}
}

func TestListConversationsOrdering(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	oldest, _ := s.CreateConversation("oldest")
	time.Sleep(5 * time.Millisecond)
	pinned, _ := s.CreateConversation("pinned")
	time.Sleep(5 * time.Millisecond)
	newest, _ := s.CreateConversation("newest")

	truth := true
	if _, err := s.UpdateConversation(pinned.ID, model.UpdateConversationRequest{Pinned: &truth}); err != nil {
		t.Fatalf("UpdateConversation() error: %v", err)
	}

	convs, err := s.ListConversations(DefaultListOptions())
	if err != nil {
		t.Fatalf("ListConversations() error: %v", err)
	}
	if len(convs) != 3 {
		t.Fatalf("ListConversations() returned %d rows, want 3", len(convs))
	}
	if convs[0].ID != pinned.ID {
		t.Errorf("first row = %q, want the pinned conversation", convs[0].Title)
	}
	if convs[1].ID != newest.ID || convs[2].ID != oldest.ID {
		t.Errorf("rows after pinned = %q, %q, want newest then oldest", convs[1].Title, convs[2].Title)
	}

	// Without pinned-first ordering, pure updated_at descending wins.
	// The pin update bumped updated_at, so pinned is also newest here.
	flat, err := s.ListConversations(ListOptions{Limit: 100})
	if err != nil {
		t.Fatalf("ListConversations() error: %v", err)
	}
	if flat[0].ID != pinned.ID || flat[1].ID != newest.ID {
		t.Errorf("flat ordering = %q, %q, want most recently updated first", flat[0].Title, flat[1].Title)
	}
}

func TestListConversationsArchivedFilter(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	visible, _ := s.CreateConversation("visible")
	archived, _ := s.CreateConversation("archived")

	truth := true
	if _, err := s.UpdateConversation(archived.ID, model.UpdateConversationRequest{Archived: &truth}); err != nil {
		t.Fatalf("UpdateConversation() error: %v", err)
	}

	convs, err := s.ListConversations(DefaultListOptions())
	if err != nil {
		t.Fatalf("ListConversations() error: %v", err)
	}
	if len(convs) != 1 || convs[0].ID != visible.ID {
		t.Fatalf("default listing = %d rows, want only the unarchived conversation", len(convs))
	}

	all, err := s.ListConversations(ListOptions{IncludeArchived: true, PinnedFirst: true, Limit: 100})
	if err != nil {
		t.Fatalf("ListConversations() error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("IncludeArchived listing = %d rows, want 2", len(all))
	}
}

func TestListConversationsSearch(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	byTitle, _ := s.CreateConversation("Trip Planning")
	byContent, _ := s.CreateConversation("misc")
	s.AddMessage(byContent.ID, AddMessageParams{Role: model.RoleUser, Content: "let's PLAN the trip itinerary"})
	s.CreateConversation("unrelated")

	convs, err := s.ListConversations(ListOptions{PinnedFirst: true, Limit: 100, Search: "plan"})
	if err != nil {
		t.Fatalf("ListConversations() error: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("search returned %d rows, want 2 (title match + content match)", len(convs))
	}
	found := map[string]bool{}
	for _, c := range convs {
		found[c.ID] = true
	}
	if !found[byTitle.ID] || !found[byContent.ID] {
		t.Errorf("search missed expected conversations: %+v", convs)
	}
}

func TestListConversationsPagination(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		s.CreateConversation("conversation")
		time.Sleep(2 * time.Millisecond)
	}

	page, err := s.ListConversations(ListOptions{PinnedFirst: true, Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("ListConversations() error: %v", err)
	}
	if len(page) != 2 {
		t.Errorf("page size = %d, want 2", len(page))
	}
}

func TestUpdateConversation(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	conv, _ := s.CreateConversation("before")
	time.Sleep(2 * time.Millisecond)

	title := "after"
	pinned := true
	got, err := s.UpdateConversation(conv.ID, model.UpdateConversationRequest{
		Title:  &title,
		Pinned: &pinned,
	})
	if err != nil {
		t.Fatalf("UpdateConversation() error: %v", err)
	}
	if got.Title != "after" || !got.Pinned || got.Archived {
		t.Errorf("UpdateConversation() = %+v, want title/pin applied, archived untouched", got)
	}
	if got.UpdatedAt <= conv.UpdatedAt {
		t.Errorf("UpdatedAt = %d, want bumped past %d", got.UpdatedAt, conv.UpdatedAt)
	}

	missing, err := s.UpdateConversation("no-such-id", model.UpdateConversationRequest{Title: &title})
	if err != nil {
		t.Fatalf("UpdateConversation() on missing id error: %v", err)
	}
	if missing != nil {
		t.Errorf("UpdateConversation() on missing id = %+v, want nil", missing)
	}
}

func TestDeleteConversationCascades(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	doomed, _ := s.CreateConversation("doomed")
	survivor, _ := s.CreateConversation("survivor")
	for i := 0; i < 3; i++ {
		s.AddMessage(doomed.ID, AddMessageParams{Role: model.RoleUser, Content: "bye"})
	}
	s.AddMessage(survivor.ID, AddMessageParams{Role: model.RoleUser, Content: "still here"})

	removed, err := s.DeleteConversation(doomed.ID)
	if err != nil {
		t.Fatalf("DeleteConversation() error: %v", err)
	}
	if !removed {
		t.Error("DeleteConversation() = false, want true")
	}

	if got, _ := s.GetConversation(doomed.ID); got != nil {
		t.Errorf("GetConversation() after delete = %+v, want nil", got)
	}
	msgs, err := s.GetMessages(doomed.ID, MessageListOptions{})
	if err != nil {
		t.Fatalf("GetMessages() error: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("GetMessages() after delete = %d messages, want 0", len(msgs))
	}

	// Exactly the owned messages were removed.
	stats, _ := s.Stats()
	if stats.TotalMessages != 1 {
		t.Errorf("TotalMessages after cascade = %d, want 1", stats.TotalMessages)
	}

	again, err := s.DeleteConversation(doomed.ID)
	if err != nil {
		t.Fatalf("second DeleteConversation() error: %v", err)
	}
	if again {
		t.Error("second DeleteConversation() = true, want false")
	}
}

func TestImportConversationPreservesContent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	imported, err := s.ImportConversation(model.ConversationWithMessages{
		Conversation: model.Conversation{
			ID:        "imported-id",
			Title:     "from export",
			CreatedAt: 1700000000000,
			UpdatedAt: 1700000100000,
			Pinned:    true,
		},
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "hello", CreatedAt: 1700000000500, TokensUsed: 3},
			{Role: model.RoleAssistant, Content: "hi there", CreatedAt: 1700000001000, TokensUsed: 5},
		},
	})
	if err != nil {
		t.Fatalf("ImportConversation() error: %v", err)
	}
	if imported.ID != "imported-id" {
		t.Errorf("imported id = %q, want preserved id", imported.ID)
	}
	if imported.Title != "from export" || !imported.Pinned {
		t.Errorf("imported metadata = %+v, want preserved", imported)
	}
	if imported.CreatedAt != 1700000000000 || imported.UpdatedAt != 1700000100000 {
		t.Errorf("imported timestamps = %d/%d, want preserved", imported.CreatedAt, imported.UpdatedAt)
	}

	msgs, _ := s.GetMessages(imported.ID, MessageListOptions{})
	if len(msgs) != 2 || msgs[0].Content != "hello" || msgs[1].Content != "hi there" {
		t.Fatalf("imported messages = %+v, want both in order", msgs)
	}

	// A second import with the same id gets a fresh one.
	dup, err := s.ImportConversation(model.ConversationWithMessages{
		Conversation: model.Conversation{ID: "imported-id", Title: "duplicate"},
	})
	if err != nil {
		t.Fatalf("duplicate ImportConversation() error: %v", err)
	}
	if dup.ID == "imported-id" {
		t.Error("duplicate import reused the colliding id")
	}
}
