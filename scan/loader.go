package scan

import (
	"fmt"
	"io/fs"
	"path"

	"gopkg.in/yaml.v3"
)

// DefaultResourcePattern matches every manifest in the space, recursively.
const DefaultResourcePattern = "*.yaml"

// ResourceLoader is the resource-space access layer the scanner consumes.
// The scanner never touches I/O directly.
type ResourceLoader interface {
	// EnumerateResources lists resources under basePath whose file name
	// matches pattern, walking recursively in lexical order.
	EnumerateResources(basePath, pattern string) ([]Resource, error)

	// LoadTypeDescriptor parses one resource into candidate type metadata.
	LoadTypeDescriptor(res Resource) (*TypeDescriptor, error)
}

// FSLoader reads YAML type manifests out of an io/fs.FS.
type FSLoader struct {
	fsys fs.FS
}

// NewFSLoader creates a loader over the given filesystem.
func NewFSLoader(fsys fs.FS) *FSLoader {
	return &FSLoader{fsys: fsys}
}

// EnumerateResources walks basePath recursively and returns every file whose
// base name matches pattern.
func (l *FSLoader) EnumerateResources(basePath, pattern string) ([]Resource, error) {
	if pattern == "" {
		pattern = DefaultResourcePattern
	}
	var resources []Resource
	err := fs.WalkDir(l.fsys, basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		matched, matchErr := path.Match(pattern, path.Base(p))
		if matchErr != nil {
			return fmt.Errorf("invalid resource pattern %q: %w", pattern, matchErr)
		}
		if matched {
			resources = append(resources, Resource{Path: p})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate resources under %q: %w", basePath, err)
	}
	return resources, nil
}

// LoadTypeDescriptor parses one manifest.
func (l *FSLoader) LoadTypeDescriptor(res Resource) (*TypeDescriptor, error) {
	data, err := fs.ReadFile(l.fsys, res.Path)
	if err != nil {
		return nil, fmt.Errorf("read resource %q: %w", res.Path, err)
	}
	var td TypeDescriptor
	if err := yaml.Unmarshal(data, &td); err != nil {
		return nil, fmt.Errorf("parse type manifest %q: %w", res.Path, err)
	}
	if td.Name == "" {
		return nil, fmt.Errorf("type manifest %q has no name", res.Path)
	}
	td.Source = res.Path
	return &td, nil
}
