package catalog

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/deeplearn-app/deeplearn/internal/model"
)

//go:embed defaults/*.yaml
var defaultsFS embed.FS

// ErrEmpty is returned when a catalog has no groups configured.
var ErrEmpty = errors.New("catalog has no groups")

// GroupError reports a malformed group found while loading a catalog.
type GroupError struct {
	Index  int
	Title  string
	Reason string
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("group %d (%q): %s", e.Index, e.Title, e.Reason)
}

// fileGroup accepts the "videos" key used by older data files as an alias for "items".
type fileGroup struct {
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description" yaml:"description"`
	Items       []fileItem `json:"items" yaml:"items"`
	Videos      []fileItem `json:"videos" yaml:"videos"`
}

type fileItem struct {
	URL   string `json:"url" yaml:"url"`
	Label string `json:"label" yaml:"label"`
}

type fileCatalog struct {
	Name   string      `json:"name" yaml:"name"`
	Groups []fileGroup `json:"groups" yaml:"groups"`
}

// Load reads a catalog file. Files ending in .yaml or .yml are parsed as YAML,
// everything else as JSON. The file may hold either an object with a "groups"
// list or a bare list of groups.
func Load(name, path string) (model.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Catalog{}, fmt.Errorf("read %s: %w", path, err)
	}
	c, err := Parse(name, data, filepath.Ext(path))
	if err != nil {
		return model.Catalog{}, fmt.Errorf("load %s: %w", path, err)
	}
	slog.Info("loaded catalog", "name", c.Name, "path", path, "groups", c.Len())
	return c, nil
}

// Parse builds a catalog from file contents; ext selects the format as in Load.
// An empty name falls back to the name recorded in the data.
func Parse(name string, data []byte, ext string) (model.Catalog, error) {
	fc, err := parse(data, ext)
	if err != nil {
		return model.Catalog{}, fmt.Errorf("parse: %w", err)
	}
	if name == "" {
		name = fc.Name
	}
	return build(name, fc.Groups)
}

// Default returns a built-in catalog: "pre" and "post" share the detection sets,
// "ethics" holds the reflection scenarios.
func Default(name string) (model.Catalog, error) {
	var file string
	switch name {
	case string(model.TagPre), string(model.TagPost):
		file = "defaults/detection.yaml"
	case string(model.TagEthics):
		file = "defaults/ethics.yaml"
	default:
		return model.Catalog{}, fmt.Errorf("no built-in catalog named %q", name)
	}
	data, err := defaultsFS.ReadFile(file)
	if err != nil {
		return model.Catalog{}, fmt.Errorf("read built-in %s: %w", file, err)
	}
	fc, err := parse(data, ".yaml")
	if err != nil {
		return model.Catalog{}, fmt.Errorf("parse built-in %s: %w", file, err)
	}
	return build(name, fc.Groups)
}

// Resolve loads the catalog at path, or the built-in one when path is empty.
func Resolve(name, path string) (model.Catalog, error) {
	if path == "" {
		return Default(name)
	}
	return Load(name, path)
}

// FromGroups validates in-memory groups and returns a catalog holding copies of them.
func FromGroups(name string, groups []model.ItemGroup) (model.Catalog, error) {
	if len(groups) == 0 {
		return model.Catalog{}, ErrEmpty
	}
	out := make([]model.ItemGroup, len(groups))
	for i, g := range groups {
		if err := validateGroup(i, g); err != nil {
			return model.Catalog{}, err
		}
		g.Items = slices.Clone(g.Items)
		out[i] = g
	}
	return model.Catalog{Name: name, Groups: out}, nil
}

func parse(data []byte, ext string) (fileCatalog, error) {
	var fc fileCatalog
	trimmed := strings.TrimSpace(string(data))
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if strings.HasPrefix(trimmed, "-") {
			return fc, yaml.Unmarshal(data, &fc.Groups)
		}
		return fc, yaml.Unmarshal(data, &fc)
	default:
		if strings.HasPrefix(trimmed, "[") {
			return fc, json.Unmarshal(data, &fc.Groups)
		}
		return fc, json.Unmarshal(data, &fc)
	}
}

func build(name string, groups []fileGroup) (model.Catalog, error) {
	if len(groups) == 0 {
		return model.Catalog{}, ErrEmpty
	}
	out := make([]model.ItemGroup, 0, len(groups))
	for i, fg := range groups {
		raw := fg.Items
		if len(raw) == 0 {
			raw = fg.Videos
		}
		g := model.ItemGroup{
			Title:       strings.TrimSpace(fg.Title),
			Description: strings.TrimSpace(fg.Description),
		}
		for _, fi := range raw {
			label, err := model.ParseLabel(strings.ToLower(strings.TrimSpace(fi.Label)))
			if err != nil {
				return model.Catalog{}, &GroupError{Index: i, Title: g.Title, Reason: err.Error()}
			}
			g.Items = append(g.Items, model.Item{URL: strings.TrimSpace(fi.URL), Label: label})
		}
		if err := validateGroup(i, g); err != nil {
			return model.Catalog{}, err
		}
		out = append(out, g)
	}
	return model.Catalog{Name: name, Groups: out}, nil
}

func validateGroup(i int, g model.ItemGroup) error {
	if len(g.Items) == 0 {
		return &GroupError{Index: i, Title: g.Title, Reason: "group has no items"}
	}
	for j, it := range g.Items {
		if it.URL == "" {
			return &GroupError{Index: i, Title: g.Title, Reason: fmt.Sprintf("item %d has no url", j)}
		}
		if it.Label != model.LabelReal && it.Label != model.LabelSynthetic {
			return &GroupError{Index: i, Title: g.Title, Reason: fmt.Sprintf("item %d has unknown label %q", j, it.Label)}
		}
	}
	return nil
}
