package mapsync

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"pinmap/internal/domain/layer"
	"pinmap/internal/domain/mapview"
	"pinmap/internal/domain/pin"
	"pinmap/internal/domain/user"
	"pinmap/internal/service/registry"
)

// DefaultPointTitle titles static points without a title or layer name
const DefaultPointTitle = "Bod vrstvy"

// pinDetail builds the popup content of a pin
func (e *Engine) pinDetail(p pin.Pin) mapview.DetailView {
	view := mapview.DetailView{
		Title:     e.categoryTitle(p.Category),
		Comment:   p.Comment,
		Editable:  p.CanEdit,
		Deletable: p.CanDelete,
	}

	author := strings.TrimSpace(p.CreatedByName)
	if author == "" {
		author = user.UnknownName
	}
	view.Lines = append(view.Lines,
		"Autor: "+author,
		"Vytvoreno: "+FormatTime(p.CreatedAt),
	)
	if p.CreatedFromIP != nil && strings.TrimSpace(*p.CreatedFromIP) != "" {
		view.Lines = append(view.Lines, "Verejna IP: "+*p.CreatedFromIP)
	}

	return view
}

func (e *Engine) categoryTitle(typ string) string {
	switch typ {
	case pin.CategoryGood:
		return "Citim se dobre"
	case pin.CategoryBad:
		return "Necitim se dobre"
	case pin.CategoryChange:
		return "Tady to chce zmenu"
	}
	return "Kategorie: " + e.registry.EnsureCategory(typ).Label
}

// pointDetailBuilder returns the popup builder of a static point
func (e *Engine) pointDetailBuilder(key string, p layer.Point) func() mapview.DetailView {
	return func() mapview.DetailView {
		title := strings.TrimSpace(p.Title)
		if title == "" {
			if l, ok := e.registry.Layer(key); ok {
				title = l.Name
			}
		}
		if title == "" {
			title = DefaultPointTitle
		}

		view := mapview.DetailView{Title: title, Comment: p.Comment}
		if p.Description != "" {
			view.Lines = append(view.Lines, p.Description)
		}
		view.Lines = append(view.Lines, dataLines(p.Data)...)
		return view
	}
}

// dataLines renders point data as "Key: value", skipping empty values
func dataLines(data map[string]interface{}) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lines []string
	for _, k := range keys {
		v := data[k]
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %v", registry.PrettifyLabel(k), v))
	}
	return lines
}

// FormatTime renders a timestamp the way the map shows it
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2. 1. 2006 15:04:05")
}
