// Package scan discovers component definitions in a resource space. A
// resource space is any io/fs.FS holding type manifests; the scanner walks it
// under base paths, applies an include/exclude filter chain to each candidate
// type, and registers the survivors into a definition registry.
package scan

// Resource identifies one candidate resource in the scanned space.
type Resource struct {
	// Path is the resource's location inside the space, used both for
	// loading and for definition source diagnostics.
	Path string
}

// TypeDescriptor is the parsed metadata of one candidate type. Descriptors
// are what the filter chain evaluates; they carry no behavior.
type TypeDescriptor struct {
	// Name is the fully-qualified type name, e.g. "app/service.UserService".
	Name string `yaml:"name"`

	// Annotations are the markers declared directly on the type.
	Annotations []string `yaml:"annotations"`

	// MetaAnnotations maps an annotation to the annotations present on the
	// annotation itself, enabling stereotype composition: a type annotated
	// "service" matches a "component" filter when "service" is
	// meta-annotated with "component".
	MetaAnnotations map[string][]string `yaml:"meta_annotations"`

	// Supertypes lists the transitive supertype and interface names.
	Supertypes []string `yaml:"supertypes"`

	// Scope is the declared scope annotation value, empty for default.
	Scope string `yaml:"scope"`

	// Capabilities declares the extension capabilities of the type, by tag
	// name (e.g. "registryProcessor", "ordered"). Resolved into the
	// definition's capability set at registration.
	Capabilities []string `yaml:"capabilities"`

	// Source is the resource path the descriptor was loaded from.
	// Populated by the loader, not the manifest.
	Source string `yaml:"-"`
}

// HasAnnotation reports whether the annotation is present directly or
// through meta-annotations, following the meta chain transitively.
func (d *TypeDescriptor) HasAnnotation(name string) bool {
	seen := make(map[string]bool)
	queue := append([]string(nil), d.Annotations...)
	for len(queue) > 0 {
		ann := queue[0]
		queue = queue[1:]
		if seen[ann] {
			continue
		}
		seen[ann] = true
		if ann == name {
			return true
		}
		queue = append(queue, d.MetaAnnotations[ann]...)
	}
	return false
}

// AssignableTo reports whether the type is the named type or one of its
// subtypes/implementors.
func (d *TypeDescriptor) AssignableTo(name string) bool {
	if d.Name == name {
		return true
	}
	for _, s := range d.Supertypes {
		if s == name {
			return true
		}
	}
	return false
}
