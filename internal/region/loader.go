package region

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// document is the top level of a template file. One file may carry any
// mix of templates and regions.
type document struct {
	Templates []Template `yaml:"templates" toml:"templates"`
	Regions   []Region   `yaml:"regions" toml:"regions"`
}

// LoadDir walks dir recursively and loads every *.yaml, *.yml and *.toml
// file into a new MemoryStore. A missing directory yields an empty store.
func LoadDir(dir string) (*MemoryStore, error) {
	store := NewMemoryStore()

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		slog.Warn("template directory not found, starting with empty store", "dir", dir)
		return store, nil
	}

	var files int
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		var doc document
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			doc, err = decodeYAML(path)
		case ".toml":
			doc, err = decodeTOML(path)
		default:
			return nil
		}
		if err != nil {
			return err
		}

		if err := store.addDocument(doc); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		files++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading templates from %s: %w", dir, err)
	}

	slog.Info("loaded templates",
		"dir", dir,
		"files", files,
		"templates", len(store.TemplateNames()),
		"regions", len(store.RegionIDs()))
	return store, nil
}

func (s *MemoryStore) addDocument(doc document) error {
	for _, t := range doc.Templates {
		if err := s.AddTemplate(t); err != nil {
			return err
		}
	}
	for _, r := range doc.Regions {
		if err := s.AddRegion(r); err != nil {
			return err
		}
	}
	return nil
}

func decodeYAML(path string) (document, error) {
	var doc document

	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("reading %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return doc, fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc, nil
}

func decodeTOML(path string) (document, error) {
	var doc document

	md, err := toml.DecodeFile(path, &doc)
	if err != nil {
		return doc, fmt.Errorf("parsing %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		slog.Warn("unknown keys in template file", "file", path, "keys", keys)
	}
	return doc, nil
}
