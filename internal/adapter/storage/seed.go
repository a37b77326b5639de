package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"pinmap/internal/domain/layer"
	"pinmap/internal/domain/pin"
	"pinmap/internal/domain/user"
)

// SeedAuthor is the creator name of seeded rows that carry none
const SeedAuthor = "Seed data"

// Seed is a parsed seed file. Entries that failed validation are counted
// in Skipped and left out.
type Seed struct {
	Layers  []layer.Layer
	Pins    []pin.Record
	Points  map[string][]pin.Record
	Skipped int
}

// SeedLayerStore is the layer storage the seeder writes to
type SeedLayerStore interface {
	GetLayer(ctx context.Context, key string) (*layer.Layer, error)
	UpsertLayer(ctx context.Context, l layer.Layer) error
}

// SeedPointStore is the point storage the seeder writes to
type SeedPointStore interface {
	CountPoints(ctx context.Context, layerKey string) (int64, error)
	InsertPoint(ctx context.Context, rec pin.Record) (*pin.Record, error)
}

// Seeder fills empty tables from a seed file
type Seeder struct {
	layers SeedLayerStore
	points SeedPointStore
	logger *slog.Logger
}

// NewSeeder creates a new seeder
func NewSeeder(layers SeedLayerStore, points SeedPointStore, logger *slog.Logger) *Seeder {
	return &Seeder{
		layers: layers,
		points: points,
		logger: logger,
	}
}

// SeedFile seeds from path. A missing file seeds nothing.
func (s *Seeder) SeedFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Debug("Seed file not found", "path", path)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("error reading seed file: %w", err)
	}

	seed, err := ParseSeed(data, filepath.Ext(path))
	if err != nil {
		return 0, err
	}

	inserted, err := s.Seed(ctx, seed)
	if err != nil {
		return inserted, err
	}
	if inserted > 0 {
		s.logger.Info("Seeded points", "count", inserted, "file", filepath.Base(path), "skipped", seed.Skipped)
	}
	return inserted, nil
}

// Seed upserts the seed layers, then inserts pins and points into layers
// that have none yet. Duplicate ids are ignored.
func (s *Seeder) Seed(ctx context.Context, seed *Seed) (int, error) {
	for _, l := range seed.Layers {
		if err := s.layers.UpsertLayer(ctx, l); err != nil {
			return 0, err
		}
	}

	inserted := 0

	n, err := s.seedLayer(ctx, layer.FeelingsKey, seed.Pins)
	inserted += n
	if err != nil {
		return inserted, err
	}

	keys := make([]string, 0, len(seed.Points))
	for key := range seed.Points {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if _, err := s.layers.GetLayer(ctx, key); err != nil {
			if errors.Is(err, layer.ErrNotFound) {
				s.logger.Warn("Skipping seed points of unknown layer", "layer", key)
				continue
			}
			return inserted, err
		}

		n, err := s.seedLayer(ctx, key, seed.Points[key])
		inserted += n
		if err != nil {
			return inserted, err
		}
	}

	return inserted, nil
}

func (s *Seeder) seedLayer(ctx context.Context, key string, records []pin.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	count, err := s.points.CountPoints(ctx, key)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	inserted := 0
	for _, rec := range records {
		rec.LayerKey = key
		if _, err := s.points.InsertPoint(ctx, rec); err != nil {
			if errors.Is(err, pin.ErrConflict) {
				continue
			}
			return inserted, fmt.Errorf("error seeding point %s: %w", rec.ID, err)
		}
		inserted++
	}
	return inserted, nil
}

// ParseSeed decodes a seed document. ext selects YAML for ".yaml" and
// ".yml"; anything else is read as JSON.
func ParseSeed(data []byte, ext string) (*Seed, error) {
	var doc interface{}
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("error parsing seed yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("error parsing seed json: %w", err)
		}
	}

	root, ok := doc.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("error parsing seed: document is not an object")
	}

	seed := &Seed{Points: make(map[string][]pin.Record)}

	if list, ok := root["layers"].([]interface{}); ok {
		for _, item := range list {
			if l, ok := seedLayer(item); ok {
				seed.Layers = append(seed.Layers, l)
			} else {
				seed.Skipped++
			}
		}
	}

	if list, ok := root["pins"].([]interface{}); ok {
		for _, item := range list {
			if rec, ok := seedPin(item); ok {
				seed.Pins = append(seed.Pins, rec)
			} else {
				seed.Skipped++
			}
		}
	}

	if groups, ok := root["points"].(map[string]interface{}); ok {
		for key, value := range groups {
			key = strings.TrimSpace(key)
			list, ok := value.([]interface{})
			if key == "" || !ok {
				continue
			}
			for _, item := range list {
				if rec, ok := seedPoint(item); ok {
					seed.Points[key] = append(seed.Points[key], rec)
				} else {
					seed.Skipped++
				}
			}
		}
	}

	return seed, nil
}

func seedLayer(item interface{}) (layer.Layer, bool) {
	m, ok := item.(map[string]interface{})
	if !ok {
		return layer.Layer{}, false
	}
	key, ok1 := nonBlank(m["key"])
	name, ok2 := nonBlank(m["name"])
	if !ok1 || !ok2 {
		return layer.Layer{}, false
	}

	l := layer.Layer{
		Key:       key,
		Name:      name,
		Kind:      layer.KindStatic,
		IsEnabled: true,
		SortOrder: layer.DefaultSortOrder,
	}
	if kind, ok := m["kind"].(string); ok && strings.TrimSpace(kind) != "" {
		l.Kind = layer.Kind(pin.Truncate(strings.TrimSpace(kind), layer.MaxKindLength))
	}
	if v, ok := m["allow_user_points"].(bool); ok {
		l.AllowUserPoints = v
	}
	if v, ok := m["is_enabled"].(bool); ok {
		l.IsEnabled = v
	}
	if v, ok := number(m["sort_order"]); ok {
		l.SortOrder = int(v)
	}
	return l, true
}

func seedPin(item interface{}) (pin.Record, bool) {
	m, ok := item.(map[string]interface{})
	if !ok {
		return pin.Record{}, false
	}
	id, ok1 := nonBlank(m["id"])
	lat, ok2 := number(m["lat"])
	lng, ok3 := number(m["lng"])
	category, ok4 := nonBlank(m["type"])
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return pin.Record{}, false
	}

	comment := ""
	if raw, present := m["comment"]; present && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return pin.Record{}, false
		}
		comment = s
	}

	return pin.Record{
		ID:            id,
		Lat:           lat,
		Lng:           lng,
		Type:          category,
		Comment:       pin.Truncate(comment, pin.MaxCommentLength),
		CreatedByName: authorOf(m),
		Data:          object(m["data"]),
	}, true
}

func seedPoint(item interface{}) (pin.Record, bool) {
	m, ok := item.(map[string]interface{})
	if !ok {
		return pin.Record{}, false
	}
	id, ok1 := nonBlank(m["id"])
	lat, ok2 := number(m["lat"])
	lng, ok3 := number(m["lng"])
	if !ok1 || !ok2 || !ok3 {
		return pin.Record{}, false
	}

	return pin.Record{
		ID:            id,
		Lat:           lat,
		Lng:           lng,
		Title:         pin.Truncate(text(m["title"]), layer.MaxTitleLength),
		Description:   pin.Truncate(text(m["description"]), layer.MaxDescriptionLength),
		Type:          pin.Truncate(text(m["type"]), layer.MaxTypeLength),
		Comment:       pin.Truncate(text(m["comment"]), pin.MaxCommentLength),
		CreatedByName: authorOf(m),
		Data:          object(m["data"]),
	}, true
}

func authorOf(m map[string]interface{}) string {
	if name, ok := nonBlank(m["created_by_name"]); ok {
		return pin.Truncate(name, user.MaxNameLength)
	}
	return SeedAuthor
}

func nonBlank(v interface{}) (string, bool) {
	s, ok := v.(string)
	s = strings.TrimSpace(s)
	return s, ok && s != ""
}

func text(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// number accepts JSON floats and YAML ints and floats; booleans are rejected
func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func object(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}
