package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"mcpgate/internal/fsutil"
)

// Format is the on-disk encoding, selected by file extension.
type Format string

const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

func Decode(format Format, data []byte) (*File, error) {
	f := &File{}
	var err error
	switch format {
	case FormatTOML:
		err = toml.Unmarshal(data, f)
	case FormatYAML:
		err = yaml.Unmarshal(data, f)
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		err = dec.Decode(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s manifest: %v", ErrValidation, format, err)
	}
	if f.MCPs == nil {
		f.MCPs = map[string]*Entry{}
	}
	return f, nil
}

func Encode(format Format, f *File) ([]byte, error) {
	switch format {
	case FormatTOML:
		return toml.Marshal(f)
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(f); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		blob, err := json.MarshalIndent(f, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(blob, '\n'), nil
	}
}

// Load reads a manifest. A missing file returns an error satisfying os.IsNotExist.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Decode(FormatFor(path), data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Save writes the manifest atomically in the format implied by its extension.
func Save(path string, f *File) error {
	data, err := Encode(FormatFor(path), f)
	if err != nil {
		return fmt.Errorf("MAN_WRITE: %w", err)
	}
	if err := fsutil.AtomicWrite(path, data, 0o644); err != nil {
		return fmt.Errorf("MAN_WRITE: %w", err)
	}
	return nil
}

// Ensure returns the manifest at path, creating an empty one for the group if absent.
func Ensure(path string, g Group) (*File, error) {
	f, err := Load(path)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	f = New(g)
	if err := Save(path, f); err != nil {
		return nil, err
	}
	return f, nil
}
