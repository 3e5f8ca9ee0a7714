package content

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/duelsim/internal/game/combat"
)

// LoadTemplateFromBytes parses a single template from raw YAML bytes.
//
// Postcondition: Returns a validated *Template, or an error.
func LoadTemplateFromBytes(data []byte) (*Template, error) {
	var tmpl Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("%w: parsing template YAML: %v", ErrInvalidTemplate, err)
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// LoadTemplate reads and validates the template at path.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}
	tmpl, err := LoadTemplateFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("loading %q: %w", path, err)
	}
	tmpl.Source = path
	return tmpl, nil
}

// LoadTemplates reads all *.yaml and *.yml files in dir, in file name order.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns all templates or an error on the first parse or
// validate failure, or when two templates share a name.
func LoadTemplates(dir string) ([]*Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading template dir %q: %w", dir, err)
	}

	var templates []*Template
	seen := make(map[string]string)
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		tmpl, err := LoadTemplate(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		key := strings.ToLower(tmpl.Name)
		if prev, ok := seen[key]; ok {
			return nil, fmt.Errorf("%w: %q is defined in both %q and %q", ErrInvalidTemplate, tmpl.Name, prev, tmpl.Source)
		}
		seen[key] = tmpl.Source
		templates = append(templates, tmpl)
	}
	return templates, nil
}

// FindByName returns the template whose name or file stem matches name,
// ignoring case.
func FindByName(templates []*Template, name string) (*Template, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	for _, t := range templates {
		if strings.ToLower(t.Name) == want {
			return t, nil
		}
	}
	for _, t := range templates {
		stem := strings.TrimSuffix(filepath.Base(t.Source), filepath.Ext(t.Source))
		if t.Source != "" && strings.ToLower(stem) == want {
			return t, nil
		}
	}
	return nil, fmt.Errorf("no template named %q", name)
}

// Resolve loads the combatant named by ref: a path to a YAML file, or a
// template name looked up in dir.
//
// Postcondition: the combatant has the wanted side, or an error is returned.
func Resolve(dir, ref string, want combat.Side) (*combat.Combatant, error) {
	var (
		tmpl *Template
		err  error
	)
	if ext := filepath.Ext(ref); ext == ".yaml" || ext == ".yml" {
		tmpl, err = LoadTemplate(ref)
	} else {
		var all []*Template
		if all, err = LoadTemplates(dir); err == nil {
			tmpl, err = FindByName(all, ref)
		}
	}
	if err != nil {
		return nil, err
	}
	c, err := tmpl.Combatant()
	if err != nil {
		return nil, err
	}
	if c.Side != want {
		return nil, fmt.Errorf("%w: %q is a %s, expected a %s", combat.ErrInvalidCombatant, c.Name, c.Side, want)
	}
	return c, nil
}
