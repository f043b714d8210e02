// Package manifest handles ripple.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a ripple.toml project configuration.
type Manifest struct {
	Project  Project  `toml:"project"`
	Graph    Graph    `toml:"graph"`
	Output   Output   `toml:"output"`
	Compiler Compiler `toml:"compiler"`

	// Dir is the directory containing the ripple.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Graph configures the expression graph input.
type Graph struct {
	// Entry is the JSON-serialized expression graph exported by the front end.
	Entry string `toml:"entry"`
}

// Output configures envelope output.
type Output struct {
	Path string `toml:"path"`
	// Format is one of "binary", "module", "factory".
	Format  string `toml:"format"`
	Name    string `toml:"name"`
	Package string `toml:"package"`
}

// Compiler contains compile options.
type Compiler struct {
	Debug     bool `toml:"debug"`
	TypeCheck bool `toml:"type-check"`
}

// Load parses a ripple.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "ripple.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	m.Dir = dir

	if m.Project.Name == "" {
		return nil, fmt.Errorf("%s: project.name is required", path)
	}
	if m.Graph.Entry == "" {
		return nil, fmt.Errorf("%s: graph.entry is required", path)
	}
	if m.Output.Format == "" {
		m.Output.Format = "binary"
	}
	if m.Output.Name == "" {
		m.Output.Name = m.Project.Name
	}
	return &m, nil
}

// EntryPath resolves the graph entry relative to the manifest directory.
func (m *Manifest) EntryPath() string {
	if filepath.IsAbs(m.Graph.Entry) {
		return m.Graph.Entry
	}
	return filepath.Join(m.Dir, m.Graph.Entry)
}

// OutputPath resolves the output path relative to the manifest directory.
func (m *Manifest) OutputPath() string {
	if m.Output.Path == "" {
		ext := ".rpbc"
		if m.Output.Format != "binary" {
			ext = ".go"
		}
		return filepath.Join(m.Dir, m.Project.Name+ext)
	}
	if filepath.IsAbs(m.Output.Path) {
		return m.Output.Path
	}
	return filepath.Join(m.Dir, m.Output.Path)
}
