package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Binding pairs a spreadsheet with the remote mailing list it feeds.
// Bindings are immutable for the lifetime of the process.
type Binding struct {
	Name   string `yaml:"name" toml:"name" json:"name"`
	ListID string `yaml:"list_id" toml:"list_id" json:"listId"`
	File   string `yaml:"file" toml:"file" json:"file"`
}

// bindingsFile is the on-disk shape shared by the YAML and TOML formats.
type bindingsFile struct {
	Bindings []Binding `yaml:"bindings" toml:"bindings"`
}

// ErrNoBindings is returned when the bindings file declares nothing to sync.
var ErrNoBindings = errors.New("no bindings configured")

// LoadBindings reads source bindings from a YAML (.yaml, .yml) or TOML (.toml) file.
// Declaration order is preserved. Relative spreadsheet paths are resolved
// against the directory containing the bindings file.
func LoadBindings(path string) ([]Binding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bindings file: %w", err)
	}

	bindings, err := parseBindings(filepath.Ext(path), data)
	if err != nil {
		return nil, fmt.Errorf("parse bindings file %s: %w", path, err)
	}

	baseDir := filepath.Dir(path)
	for i := range bindings {
		bindings[i].Name = strings.TrimSpace(bindings[i].Name)
		bindings[i].ListID = strings.TrimSpace(bindings[i].ListID)
		bindings[i].File = strings.TrimSpace(bindings[i].File)
		if bindings[i].File != "" && !filepath.IsAbs(bindings[i].File) {
			bindings[i].File = filepath.Join(baseDir, bindings[i].File)
		}
	}

	if err := ValidateBindings(bindings); err != nil {
		return nil, err
	}
	return bindings, nil
}

func parseBindings(ext string, data []byte) ([]Binding, error) {
	var file bindingsFile

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	case ".toml":
		md, err := toml.Decode(string(data), &file)
		if err != nil {
			return nil, err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown keys: %v", undecoded)
		}
	default:
		return nil, fmt.Errorf("unsupported bindings format %q (use .yaml, .yml or .toml)", ext)
	}

	return file.Bindings, nil
}

// ValidateBindings checks required fields and name uniqueness.
// Names key the invalid-record store, so duplicates would overwrite each other.
func ValidateBindings(bindings []Binding) error {
	if len(bindings) == 0 {
		return ErrNoBindings
	}

	var errs []string
	seen := make(map[string]int, len(bindings))
	for i, b := range bindings {
		if b.Name == "" {
			errs = append(errs, fmt.Sprintf("binding %d: name is required", i))
		} else if prev, dup := seen[strings.ToLower(b.Name)]; dup {
			errs = append(errs, fmt.Sprintf("binding %d: name %q duplicates binding %d", i, b.Name, prev))
		} else {
			seen[strings.ToLower(b.Name)] = i
		}
		if b.ListID == "" {
			errs = append(errs, fmt.Sprintf("binding %d (%s): list_id is required", i, b.Name))
		}
		if b.File == "" {
			errs = append(errs, fmt.Sprintf("binding %d (%s): file is required", i, b.Name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid bindings:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
