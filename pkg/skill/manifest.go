// Package skill implements C8, the Skill Activator: progressive skill
// discovery over a hot-reloaded manifest directory, followed by activation
// in one of three forms (spec §4.8).
//
// Manifest parsing is grounded on the retrieved pack's
// haasonsaas-nexus/internal/skills/types.go (SkillEntry/SkillMetadata
// YAML shape); hot-reload is grounded on that package's manager.go
// fsnotify watch loop, adapted from a debounced re-Discover to a
// debounced re-Load of this package's own Registry.
package skill

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Form is one of the three activation shapes a skill manifest may request
// (spec §4.8).
type Form string

const (
	FormInstruction   Form = "instruction"
	FormCompilation   Form = "compilation"
	FormInstantiation Form = "instantiation"
)

// CompiledToolSpec describes one scripted action a Form-2 skill compiles
// into a registered tool (spec §4.8 "compile the skill's scripted actions
// into tool definitions"). Grounded on the teacher's CommandTool
// (pkg/tools/command.go): a named command run with fixed arguments (split
// on whitespace and executed without a shell), exposed as a sandboxed tool
// that is read-only only when read_only is set.
type CompiledToolSpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Command     string `yaml:"command"`
	ReadOnly    bool   `yaml:"read_only"`
}

// NodeSpec describes a Form-3 specialized sub-agent the Agent Loop may
// instantiate and later delegate to (spec §4.8 "instantiate a specialized
// sub-agent node ... keep a reference for later delegation").
type NodeSpec struct {
	Name         string   `yaml:"name"`
	SystemPrompt string   `yaml:"system_prompt"`
	Tools        []string `yaml:"tools"`
}

// Manifest is one skill's on-disk definition (spec §4.8).
type Manifest struct {
	Name          string             `yaml:"name"`
	Description   string             `yaml:"description"`
	Form          Form               `yaml:"form"`
	Keywords      []string           `yaml:"keywords"`
	Instructions  string             `yaml:"instructions"`
	RequiredTools []string           `yaml:"required_tools"`
	Priority      string             `yaml:"priority"` // "high" | "medium" | "low"; default medium
	CompiledTools []CompiledToolSpec `yaml:"compiled_tools"`
	Nodes         []NodeSpec         `yaml:"nodes"`

	// path is the source file, retained so hot-reload can report which
	// manifest changed.
	path string
}

// ManifestError reports a malformed manifest.
type ManifestError struct {
	Path    string
	Message string
	Err     error
}

func (e *ManifestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("skill manifest %s: %s: %v", e.Path, e.Message, e.Err)
	}
	return fmt.Sprintf("skill manifest %s: %s", e.Path, e.Message)
}

func (e *ManifestError) Unwrap() error { return e.Err }

// LoadManifest parses a single manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ManifestError{Path: path, Message: "read", Err: err}
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ManifestError{Path: path, Message: "parse yaml", Err: err}
	}
	if m.Name == "" {
		return nil, &ManifestError{Path: path, Message: "missing required field: name"}
	}
	if m.Form == "" {
		m.Form = FormInstruction
	}
	m.path = path
	return &m, nil
}

// LoadManifestDir parses every *.yaml/*.yml file directly under dir,
// skipping unparseable files rather than failing the whole directory
// (progressive disclosure degrades gracefully, it does not hard-fail on
// one bad manifest).
func LoadManifestDir(dir string) ([]*Manifest, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{&ManifestError{Path: dir, Message: "read dir", Err: err}}
	}

	var manifests []*Manifest
	var errs []error
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		m, err := LoadManifest(filepath.Join(dir, name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		manifests = append(manifests, m)
	}
	return manifests, errs
}

func (m *Manifest) priorityRank() int {
	switch m.Priority {
	case "high":
		return 2
	case "low":
		return 0
	default:
		return 1
	}
}
