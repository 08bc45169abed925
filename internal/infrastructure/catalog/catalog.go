package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/iho/worldtycoon/internal/domain"
)

// typeEntry is one building type as written in the catalog file. Price may be
// spelled basePrice, price or cost.
type typeEntry struct {
	Key        string   `yaml:"key"        json:"key"        toml:"key"`
	Label      string   `yaml:"label"      json:"label"      toml:"label"`
	BaseIncome int64    `yaml:"baseIncome" json:"baseIncome" toml:"baseIncome"`
	BasePrice  int64    `yaml:"basePrice"  json:"basePrice"  toml:"basePrice"`
	Price      int64    `yaml:"price"      json:"price"      toml:"price"`
	Cost       int64    `yaml:"cost"       json:"cost"       toml:"cost"`
	MaxLevel   int      `yaml:"maxLevel"   json:"maxLevel"   toml:"maxLevel"`
	Tags       []string `yaml:"tags"       json:"tags"       toml:"tags"`
}

type typeFile struct {
	Types []typeEntry `yaml:"types" json:"types" toml:"types"`
}

// FileProvider implements usecase.CatalogProvider by reading a YAML, JSON or
// TOML file on every call, so edits apply on the next tick.
type FileProvider struct {
	path string
}

// NewFileProvider creates a new FileProvider.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// Catalog reads and parses the file. A missing, unreadable or empty file is
// reported as domain.ErrTypeRegistryMissing.
func (p *FileProvider) Catalog(_ context.Context) (domain.Catalog, error) {
	if p.path == "" {
		return nil, domain.ErrTypeRegistryMissing
	}
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTypeRegistryMissing, err)
	}

	entries, err := decodeTypes(p.path, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrTypeRegistryMissing, p.path, err)
	}

	catalog := make(domain.Catalog, len(entries))
	for _, e := range entries {
		key := strings.TrimSpace(e.Key)
		if key == "" {
			continue
		}
		catalog[key] = domain.BuildingType{
			Key:        key,
			Label:      e.Label,
			BaseIncome: e.BaseIncome,
			Price:      firstPositive(e.BasePrice, e.Price, e.Cost),
			MaxLevel:   e.MaxLevel,
		}
	}
	if len(catalog) == 0 {
		return nil, domain.ErrTypeRegistryMissing
	}
	return catalog, nil
}

func decodeTypes(path string, raw []byte) ([]typeEntry, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var f typeFile
		if _, err := toml.Decode(string(raw), &f); err != nil {
			return nil, err
		}
		return f.Types, nil
	case ".json":
		return decodeList(raw, json.Unmarshal)
	default:
		return decodeList(raw, yaml.Unmarshal)
	}
}

// decodeList accepts either a bare list or a document with a "types" list.
func decodeList(raw []byte, unmarshal func([]byte, any) error) ([]typeEntry, error) {
	var list []typeEntry
	if err := unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var f typeFile
	if err := unmarshal(raw, &f); err != nil {
		return nil, err
	}
	return f.Types, nil
}

func firstPositive(values ...int64) int64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
