package application

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

// ElectionLoader parses, validates and caches election files.
// Identical documents, after normalization, are parsed and validated once.
type ElectionLoader struct {
	validator *validator.Validate
	// cache maps the SHA256 of the normalized document to the validated
	// configuration. Cached configurations MUST NOT be mutated.
	cache   map[string]*ElectionConfig
	cacheMu sync.RWMutex
	// sf collapses concurrent validation of the same document.
	sf singleflight.Group
}

// NewElectionLoader creates a loader with the election validators
// registered.
func NewElectionLoader() (*ElectionLoader, error) {
	v := validator.New()
	if err := RegisterElectionValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}
	return &ElectionLoader{
		validator: v,
		cache:     make(map[string]*ElectionConfig),
	}, nil
}

// LoadFromFile loads an election file.
// WARNING: the returned configuration may be shared with other callers and
// MUST NOT be mutated.
func (l *ElectionLoader) LoadFromFile(path string) (*ElectionConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return l.load(data)
}

// LoadFromReader loads an election document from r. The same sharing
// rules as LoadFromFile apply.
func (l *ElectionLoader) LoadFromReader(r io.Reader) (*ElectionConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	return l.load(data)
}

func (l *ElectionLoader) load(data []byte) (*ElectionConfig, error) {
	config, err := parseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	hash, err := configHash(config)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}

	v, err, _ := l.sf.Do(hash, func() (any, error) {
		if cached, ok := l.cached(hash); ok {
			return cached, nil
		}
		if err := l.validate(config); err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}
		l.store(hash, config)
		return config, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ElectionConfig), nil
}

// parseYAML decodes strictly: unknown fields are errors so that typos such
// as "num_winner" do not silently fall back to defaults.
func parseYAML(data []byte) (*ElectionConfig, error) {
	var config ElectionConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	return &config, nil
}

func (l *ElectionLoader) validate(config *ElectionConfig) error {
	if err := l.validator.Struct(config); err != nil {
		return fmt.Errorf("struct validation failed: %w", err)
	}
	if err := validateSemantics(config); err != nil {
		return fmt.Errorf("semantic validation failed: %w", err)
	}
	return nil
}

// validateSemantics checks rules that span questions, then runs the domain
// validation of every question.
func validateSemantics(config *ElectionConfig) error {
	seen := make(map[string]struct{}, len(config.Questions))
	for _, qc := range config.Questions {
		if _, dup := seen[qc.ID]; dup {
			return fmt.Errorf("duplicate question ID %q", qc.ID)
		}
		seen[qc.ID] = struct{}{}

		if err := qc.Question().Validate(); err != nil {
			return err
		}
	}
	return nil
}

// configHash hashes the re-encoded configuration so formatting differences
// in the source do not defeat the cache.
func configHash(config *ElectionConfig) (string, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(config); err != nil {
		return "", fmt.Errorf("failed to encode config for hashing: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return "", fmt.Errorf("failed to encode config for hashing: %w", err)
	}

	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

func (l *ElectionLoader) cached(hash string) (*ElectionConfig, bool) {
	l.cacheMu.RLock()
	defer l.cacheMu.RUnlock()
	config, ok := l.cache[hash]
	return config, ok
}

func (l *ElectionLoader) store(hash string, config *ElectionConfig) {
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()
	l.cache[hash] = config
}

// ClearCache drops every cached configuration.
func (l *ElectionLoader) ClearCache() {
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()
	l.cache = make(map[string]*ElectionConfig)
}
