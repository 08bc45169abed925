package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/iho/worldtycoon/internal/domain"
)

type pinEntry struct {
	ID        string  `yaml:"id"        json:"id"        toml:"id"`
	Lat       float64 `yaml:"lat"       json:"lat"       toml:"lat"`
	Lng       float64 `yaml:"lng"       json:"lng"       toml:"lng"`
	Color     string  `yaml:"color"     json:"color"     toml:"color"`
	Type      string  `yaml:"type"      json:"type"      toml:"type"`
	Owner     string  `yaml:"owner"     json:"owner"     toml:"owner"`
	Level     int     `yaml:"level"     json:"level"     toml:"level"`
	CreatedAt int64   `yaml:"createdAt" json:"createdAt" toml:"createdAt"`
}

type pinFile struct {
	Pins []pinEntry `yaml:"pins" json:"pins" toml:"pins"`
}

const defaultPinColor = "#22c55e"

// LoadPins reads the pin seed file. Pins without an id get a random one and
// createdAt may be given in seconds or milliseconds.
func LoadPins(path string, now time.Time) ([]*domain.Pin, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pin seed: %w", err)
	}

	var entries []pinEntry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var f pinFile
		if _, err := toml.Decode(string(raw), &f); err != nil {
			return nil, fmt.Errorf("decode pin seed: %w", err)
		}
		entries = f.Pins
	case ".json":
		entries, err = decodePins(raw, json.Unmarshal)
	default:
		entries, err = decodePins(raw, yaml.Unmarshal)
	}
	if err != nil {
		return nil, fmt.Errorf("decode pin seed: %w", err)
	}

	pins := make([]*domain.Pin, 0, len(entries))
	for _, e := range entries {
		pin := &domain.Pin{
			ID:        strings.TrimSpace(e.ID),
			Owner:     domain.NormalizeOwner(e.Owner),
			Type:      strings.TrimSpace(e.Type),
			Level:     domain.ClampLevel(e.Level),
			Lat:       e.Lat,
			Lng:       e.Lng,
			Color:     e.Color,
			CreatedAt: domain.FromEpochMillis(domain.NormalizeEpochMillis(e.CreatedAt)),
		}
		if pin.ID == "" {
			pin.ID = strings.ReplaceAll(uuid.NewString(), "-", "")
		}
		if pin.Color == "" {
			pin.Color = defaultPinColor
		}
		if pin.CreatedAt.IsZero() {
			pin.CreatedAt = now
		}
		pins = append(pins, pin)
	}
	return pins, nil
}

func decodePins(raw []byte, unmarshal func([]byte, any) error) ([]pinEntry, error) {
	var list []pinEntry
	if err := unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var f pinFile
	if err := unmarshal(raw, &f); err != nil {
		return nil, err
	}
	return f.Pins, nil
}
