package resolution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Ramsey-B/fictotum/pkg/models"
)

// DefaultFilePath is where the ingestion tooling has always kept its decisions
const DefaultFilePath = "data/.ingestion-cache/resolutions.json"

// FileStore keeps decisions in a single JSON document keyed by pair key.
// The file is re-read on every call so separate processes see each other's writes.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by path. The file is created on first write.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultFilePath
	}
	return &FileStore{path: path}
}

// Path returns the backing file
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(_ context.Context, key string) (*models.ResolutionDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return nil, err
	}
	d, ok := all[key]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *FileStore) Put(_ context.Context, decision models.ResolutionDecision) error {
	if err := validate(decision); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := all[decision.Key]; ok {
		return fmt.Errorf("%s: %w", decision.Key, ErrDecisionExists)
	}
	all[decision.Key] = decision
	return s.save(all)
}

func (s *FileStore) Replace(_ context.Context, decision models.ResolutionDecision) error {
	if err := validate(decision); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return err
	}
	all[decision.Key] = decision
	return s.save(all)
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := all[key]; !ok {
		return fmt.Errorf("%s: %w", key, ErrDecisionNotFound)
	}
	delete(all, key)
	return s.save(all)
}

func (s *FileStore) List(_ context.Context) ([]models.ResolutionDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]models.ResolutionDecision, 0, len(all))
	for _, d := range all {
		out = append(out, d)
	}
	sortByKey(out)
	return out, nil
}

func (s *FileStore) Clear(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return 0, err
	}
	if len(all) == 0 {
		return 0, nil
	}
	return len(all), s.save(map[string]models.ResolutionDecision{})
}

func (s *FileStore) load() (map[string]models.ResolutionDecision, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]models.ResolutionDecision{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read resolutions file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]models.ResolutionDecision{}, nil
	}
	all, err := decodeDecisionMap(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse resolutions file %s: %w", s.path, err)
	}
	return all, nil
}

// save writes to a temp file in the same directory and renames it over the target
func (s *FileStore) save(all map[string]models.ResolutionDecision) error {
	// map keys are emitted sorted
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode resolutions: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create resolutions directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".resolutions-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp resolutions file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write resolutions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync resolutions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close resolutions: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace resolutions file: %w", err)
	}
	return nil
}

// decodeDecisionMap reads a key->decision document. Values may also be bare
// action strings, the format older tooling wrote.
func decodeDecisionMap(data []byte) (map[string]models.ResolutionDecision, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]models.ResolutionDecision, len(raw))
	for key, value := range raw {
		var action string
		if err := json.Unmarshal(value, &action); err == nil {
			d, err := legacyDecision(key, action)
			if err != nil {
				return nil, err
			}
			out[key] = d
			continue
		}
		var d models.ResolutionDecision
		if err := json.Unmarshal(value, &d); err != nil {
			return nil, fmt.Errorf("decision %s: %w", key, err)
		}
		d.Key = key
		out[key] = d
	}
	return out, nil
}

func legacyDecision(key, action string) (models.ResolutionDecision, error) {
	parsed, ok := models.ParseResolutionAction(action)
	if !ok {
		return models.ResolutionDecision{}, &models.ValidationError{Field: key, Message: fmt.Sprintf("unknown action %q", action)}
	}
	incoming, existing := SplitKey(key)
	return models.ResolutionDecision{
		Key:             key,
		Action:          parsed,
		IncomingID:      incoming,
		ExistingLocalID: existing,
		Source:          models.DecisionSourceImport,
	}, nil
}

var _ Store = (*FileStore)(nil)
