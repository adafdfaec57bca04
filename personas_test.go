package main

import (
	"path/filepath"
	"strings"
	"testing"
)

func newTestPersonaStore(t *testing.T) *PersonaStore {
	t.Helper()
	return NewPersonaStore(filepath.Join(t.TempDir(), "personas.json"))
}

func TestPersonaCRUD(t *testing.T) {
	store := newTestPersonaStore(t)

	created, err := store.Create("Skeptic", "Question everything.", "A doubter", "openai/gpt-5.1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created persona has no ID")
	}

	got, err := store.Get(created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Name != "Skeptic" {
		t.Fatalf("Get = %+v", got)
	}

	newName := "Hard Skeptic"
	newModel := "anthropic/claude-sonnet-4.5"
	updated, err := store.Update(created.ID, UpdatePersonaRequest{Name: &newName, Model: &newModel})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "Hard Skeptic" || updated.Model != newModel {
		t.Errorf("updated = %+v", updated)
	}
	// Untouched fields survive a partial update.
	if updated.Prompt != "Question everything." {
		t.Errorf("prompt changed: %q", updated.Prompt)
	}

	deleted, err := store.Delete(created.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !deleted {
		t.Error("Delete returned false for existing persona")
	}

	got, err = store.Get(created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("persona still present after delete: %+v", got)
	}
}

func TestPersonaListEmpty(t *testing.T) {
	store := newTestPersonaStore(t)

	list, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("List = %v, want empty non-nil slice", list)
	}
}

func TestPersonaUpdateMissing(t *testing.T) {
	store := newTestPersonaStore(t)

	name := "x"
	got, err := store.Update("no-such-id", UpdatePersonaRequest{Name: &name})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got != nil {
		t.Errorf("Update of missing persona = %+v, want nil", got)
	}

	deleted, err := store.Delete("no-such-id")
	if err != nil {
		t.Fatal(err)
	}
	if deleted {
		t.Error("Delete of missing persona returned true")
	}
}

func TestPersonaPersistsAcrossStores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.json")
	store := NewPersonaStore(path)

	created, err := store.Create("Historian", "You are a historian.", "", "google/gemini-3-pro-preview")
	if err != nil {
		t.Fatal(err)
	}

	reopened := NewPersonaStore(path)
	got, err := reopened.Get(created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Name != "Historian" {
		t.Errorf("reopened store Get = %+v", got)
	}
}

func TestResolveMembers(t *testing.T) {
	store := newTestPersonaStore(t)

	a, _ := store.Create("Alpha", "prompt a", "", "openai/gpt-5.1")
	b, _ := store.Create("Beta", "prompt b", "", "x-ai/grok-4")

	members, err := store.ResolveMembers([]string{b.ID, "", a.ID})
	if err != nil {
		t.Fatalf("ResolveMembers: %v", err)
	}
	// Selection order is preserved; blanks are skipped.
	if len(members) != 2 || members[0].Name != "Beta" || members[1].Name != "Alpha" {
		t.Errorf("members = %+v", members)
	}
	if members[0].Model != "x-ai/grok-4" {
		t.Errorf("model = %q", members[0].Model)
	}
}

func TestResolveMembersEmptySelection(t *testing.T) {
	store := newTestPersonaStore(t)

	members, err := store.ResolveMembers(nil)
	if err != nil {
		t.Fatalf("ResolveMembers: %v", err)
	}
	if members != nil {
		t.Errorf("empty selection = %v, want nil for default fallback", members)
	}
}

func TestResolveMembersUnknownID(t *testing.T) {
	store := newTestPersonaStore(t)

	_, err := store.ResolveMembers([]string{"ghost"})
	if err == nil || !strings.Contains(err.Error(), "invalid persona ID") {
		t.Errorf("err = %v, want invalid persona ID", err)
	}
}

func TestResolveMembersWithoutModel(t *testing.T) {
	store := newTestPersonaStore(t)

	p, _ := store.Create("NoModel", "prompt", "", "")
	_, err := store.ResolveMembers([]string{p.ID})
	if err == nil || !strings.Contains(err.Error(), "no model assigned") {
		t.Errorf("err = %v, want no model assigned", err)
	}
}
