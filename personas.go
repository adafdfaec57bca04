package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PersonaStore is a file-backed key-value store for persona records.
// All operations rewrite the whole file; a mutex serializes writers.
type PersonaStore struct {
	mu   sync.Mutex
	path string
}

// NewPersonaStore creates a persona store backed by the given JSON file.
func NewPersonaStore(path string) *PersonaStore {
	return &PersonaStore{path: path}
}

type personaFile struct {
	Personas []Persona `json:"personas"`
}

// load reads all personas from disk. A missing file is an empty store.
func (s *PersonaStore) load() (*personaFile, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &personaFile{Personas: []Persona{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read personas file: %w", err)
	}

	var pf personaFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse personas JSON: %w", err)
	}
	if pf.Personas == nil {
		pf.Personas = []Persona{}
	}
	return &pf, nil
}

func (s *PersonaStore) save(pf *personaFile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create personas directory: %w", err)
	}

	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal personas: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write personas file: %w", err)
	}

	return nil
}

// List returns all personas.
func (s *PersonaStore) List() ([]Persona, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.load()
	if err != nil {
		return nil, err
	}
	return pf.Personas, nil
}

// Get returns a persona by ID, or nil without error if not found.
func (s *PersonaStore) Get(personaID string) (*Persona, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range pf.Personas {
		if pf.Personas[i].ID == personaID {
			p := pf.Personas[i]
			return &p, nil
		}
	}
	return nil, nil
}

// Create stores a new persona and returns it with a generated ID.
func (s *PersonaStore) Create(name, prompt, description, model string) (*Persona, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.load()
	if err != nil {
		return nil, err
	}

	persona := Persona{
		ID:          uuid.New().String(),
		Name:        name,
		Prompt:      prompt,
		Description: description,
		Model:       model,
		CreatedAt:   time.Now().UTC(),
	}
	pf.Personas = append(pf.Personas, persona)

	if err := s.save(pf); err != nil {
		return nil, err
	}
	return &persona, nil
}

// Update applies a partial update to a persona. Returns the updated record,
// or nil without error if the persona doesn't exist.
func (s *PersonaStore) Update(personaID string, update UpdatePersonaRequest) (*Persona, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.load()
	if err != nil {
		return nil, err
	}

	for i := range pf.Personas {
		if pf.Personas[i].ID != personaID {
			continue
		}
		if update.Name != nil {
			pf.Personas[i].Name = *update.Name
		}
		if update.Prompt != nil {
			pf.Personas[i].Prompt = *update.Prompt
		}
		if update.Description != nil {
			pf.Personas[i].Description = *update.Description
		}
		if update.Model != nil {
			pf.Personas[i].Model = *update.Model
		}
		if err := s.save(pf); err != nil {
			return nil, err
		}
		p := pf.Personas[i]
		return &p, nil
	}

	return nil, nil
}

// Delete removes a persona. Returns false if it didn't exist.
func (s *PersonaStore) Delete(personaID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.load()
	if err != nil {
		return false, err
	}

	for i := range pf.Personas {
		if pf.Personas[i].ID == personaID {
			pf.Personas = append(pf.Personas[:i], pf.Personas[i+1:]...)
			if err := s.save(pf); err != nil {
				return false, err
			}
			return true, nil
		}
	}

	return false, nil
}

// ResolveMembers maps selected persona IDs to council members, in order.
// Empty or blank IDs are skipped; an unknown ID or a persona without a
// model is the caller's 400. An empty selection returns nil so the caller
// falls back to the default council.
func (s *PersonaStore) ResolveMembers(personaIDs []string) ([]CouncilMember, error) {
	var members []CouncilMember
	for _, id := range personaIDs {
		if id == "" {
			continue
		}
		p, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, fmt.Errorf("invalid persona ID: %s", id)
		}
		if p.Model == "" {
			return nil, fmt.Errorf("persona %q has no model assigned", p.Name)
		}
		members = append(members, CouncilMember{
			ID:          p.ID,
			Name:        p.Name,
			Model:       p.Model,
			Prompt:      p.Prompt,
			Description: p.Description,
		})
	}
	return members, nil
}
