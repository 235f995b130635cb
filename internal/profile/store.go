// Package profile stores named tunnel specs in profiles.yaml so frequently
// used database endpoints can be opened by name instead of six flags.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kthomann/dbtunnel/internal/appconfig"
	"github.com/kthomann/dbtunnel/internal/model"
)

// Definition is one named tunnel spec.
type Definition struct {
	Name string           `yaml:"name" json:"name"`
	Spec model.TunnelSpec `yaml:"spec" json:"spec"`
}

type fileModel struct {
	Profiles map[string]Definition `yaml:"profiles"`
}

// LoadAll returns all profiles sorted by name.
func LoadAll() ([]Definition, error) {
	fm, err := loadFile()
	if err != nil {
		return nil, err
	}
	out := make([]Definition, 0, len(fm.Profiles))
	for _, p := range fm.Profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Get fetches one profile by name.
func Get(name string) (Definition, error) {
	fm, err := loadFile()
	if err != nil {
		return Definition{}, err
	}
	p, ok := fm.Profiles[name]
	if !ok {
		return Definition{}, fmt.Errorf("profile not found: %s", name)
	}
	return p, nil
}

// Save adds or replaces a profile definition.
func Save(name string, spec model.TunnelSpec) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}

	fm, err := loadFile()
	if err != nil {
		return err
	}
	fm.Profiles[name] = Definition{Name: name, Spec: spec}
	return saveFile(fm)
}

// Delete removes a profile by name.
func Delete(name string) error {
	fm, err := loadFile()
	if err != nil {
		return err
	}
	if _, ok := fm.Profiles[name]; !ok {
		return fmt.Errorf("profile not found: %s", name)
	}
	delete(fm.Profiles, name)
	return saveFile(fm)
}

func loadFile() (fileModel, error) {
	path, err := appconfig.ProfilesFilePath()
	if err != nil {
		return fileModel{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fileModel{Profiles: map[string]Definition{}}, nil
		}
		return fileModel{}, err
	}
	var fm fileModel
	if err := yaml.Unmarshal(b, &fm); err != nil {
		return fileModel{}, fmt.Errorf("parse profiles: %w", err)
	}
	if fm.Profiles == nil {
		fm.Profiles = map[string]Definition{}
	}
	return fm, nil
}

func saveFile(fm fileModel) error {
	path, err := appconfig.ProfilesFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := yaml.Marshal(fm)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
