package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a configuration document.
type Format string

// Supported encodings.
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Keys of the nested configuration-as-code document shape.
const (
	sectionRoot = "unclassified"
	sectionName = "audit-trail"
)

// FormatForPath picks the encoding from the file extension. Anything other
// than .json is read as YAML.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Load reads, validates and migrates the configuration at path, then
// appends the loggers of its include fragments.
func Load(path string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.resolveIncludes(filepath.Dir(path)); err != nil {
		return nil, err
	}

	if err := cfg.ValidateLegacy(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.MigrateLegacy()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}

	return parse(path, data, FormatForPath(path))
}

// Parse decodes a document without resolving includes or migrating legacy
// settings. The document may be the configuration itself or nest it under
// "unclassified" / "audit-trail".
func Parse(data []byte, format Format) (*Config, error) {
	return parse("", data, format)
}

func parse(source string, data []byte, format Format) (*Config, error) {
	var doc any
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
		}
	}

	section, err := auditSection(doc)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if section == nil {
		return cfg, nil
	}

	if err := ValidateSchema(source, section); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(section)
	if err != nil {
		return nil, fmt.Errorf("failed to encode configuration section: %w", err)
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return cfg, nil
}

// auditSection returns the audit trail object of a decoded document, or
// nil when the document is empty or the nested shape has no audit-trail
// key.
func auditSection(doc any) (map[string]any, error) {
	if doc == nil {
		return nil, nil
	}
	top, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("configuration must be a mapping, got %T", doc)
	}

	nested, ok := top[sectionRoot]
	if !ok {
		return top, nil
	}
	if nested == nil {
		return nil, nil
	}
	root, ok := nested.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a mapping, got %T", sectionRoot, nested)
	}
	section, ok := root[sectionName]
	if !ok || section == nil {
		return nil, nil
	}
	m, ok := section.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s.%s must be a mapping, got %T", sectionRoot, sectionName, section)
	}
	return m, nil
}

// resolveIncludes appends the loggers of every fragment matched by the
// include patterns. Fragments are read in lexical order per pattern and
// their own includes are not followed.
func (c *Config) resolveIncludes(baseDir string) error {
	for _, pattern := range c.Include {
		matches, err := ExpandInclude(baseDir, pattern)
		if err != nil {
			return err
		}
		for _, match := range matches {
			fragment, err := loadFile(match)
			if err != nil {
				return fmt.Errorf("loading include %s: %w", match, err)
			}
			c.Loggers = append(c.Loggers, fragment.Loggers...)
		}
	}
	return nil
}

// ExpandInclude resolves pattern against baseDir and returns the matching
// files in lexical order. "**" matches any number of directories.
func ExpandInclude(baseDir, pattern string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(baseDir, pattern)
	}
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("expanding include pattern %q: %w", pattern, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// Marshal encodes cfg in the top-level document shape.
func Marshal(cfg *Config, format Format) ([]byte, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if format == FormatJSON {
		return json.MarshalIndent(cfg, "", "  ")
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes cfg to path atomically. The encoding follows the extension
// and parent directories are created.
func Save(path string, cfg *Config) error {
	data, err := Marshal(cfg, FormatForPath(path))
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}
