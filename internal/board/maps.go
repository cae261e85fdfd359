package board

import (
	_ "embed"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

//go:embed maps/usa.yaml
var usaMap []byte

// mapFile mirrors the on-disk YAML layout of a board.
type mapFile struct {
	Name   string `yaml:"name"`
	Cities []struct {
		Tag    string `yaml:"tag"`
		Name   string `yaml:"name"`
		Region string `yaml:"region"`
	} `yaml:"cities"`
	Edges []struct {
		A    string `yaml:"a"`
		B    string `yaml:"b"`
		Cost int    `yaml:"cost"`
	} `yaml:"edges"`
}

// USA returns a fresh copy of the built-in 42-city board.
func USA() *Map {
	m, err := Parse(usaMap)
	if err != nil {
		panic(fmt.Sprintf("board: embedded usa.yaml: %v", err))
	}
	return m
}

// Load reads a board definition from r.
func Load(r io.Reader) (*Map, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse builds a map from YAML.
func Parse(data []byte) (*Map, error) {
	var f mapFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse map: %w", err)
	}
	if len(f.Cities) == 0 {
		return nil, fmt.Errorf("map %q has no cities", f.Name)
	}
	m := New(f.Name)
	for _, c := range f.Cities {
		if err := m.AddLocation(c.Tag, c.Name, c.Region); err != nil {
			return nil, err
		}
	}
	for _, e := range f.Edges {
		if err := m.AddEdge(e.A, e.B, e.Cost); err != nil {
			return nil, err
		}
	}
	return m, nil
}
