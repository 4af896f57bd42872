package scan

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind identifies a filter construction strategy.
type Kind string

const (
	// KindAnnotation matches types carrying the named annotation, directly
	// or through meta-annotations.
	KindAnnotation Kind = "annotation"
	// KindAssignable matches the named type and its subtypes/implementors.
	KindAssignable Kind = "assignable"
	// KindExpression matches a structural type pattern: "*" matches within a
	// name segment, ".." matches across segments, e.g. "app..*Service".
	KindExpression Kind = "expression"
	// KindRegex matches the fully-qualified type name against a regular
	// expression.
	KindRegex Kind = "regex"
	// KindCustom matches with a user-supplied predicate type, looked up in
	// the catalog and zero-argument constructed.
	KindCustom Kind = "custom"
)

// FilterSpec is the declarative (kind, expression) pair a filter is built
// from.
type FilterSpec struct {
	Kind       Kind
	Expression string
}

// TypeFilter is a stateless include/exclude predicate over candidate types.
type TypeFilter interface {
	Matches(td *TypeDescriptor) bool
}

// annotationFilter matches types carrying an annotation, meta-aware.
type annotationFilter struct {
	annotation string
}

// NewAnnotationFilter builds an annotation filter.
func NewAnnotationFilter(annotation string) TypeFilter {
	return &annotationFilter{annotation: annotation}
}

func (f *annotationFilter) Matches(td *TypeDescriptor) bool {
	return td.HasAnnotation(f.annotation)
}

// assignableFilter matches a type and everything assignable to it.
type assignableFilter struct {
	target string
}

// NewAssignableFilter builds an assignability filter.
func NewAssignableFilter(target string) TypeFilter {
	return &assignableFilter{target: target}
}

func (f *assignableFilter) Matches(td *TypeDescriptor) bool {
	return td.AssignableTo(f.target)
}

// regexFilter matches the fully-qualified name against a pattern.
type regexFilter struct {
	pattern *regexp.Regexp
}

// NewRegexFilter builds a regex filter. An invalid pattern is a ConfigError.
func NewRegexFilter(pattern string) (TypeFilter, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, newConfigError("invalid regex filter %q: %v", pattern, err)
	}
	return &regexFilter{pattern: re}, nil
}

func (f *regexFilter) Matches(td *TypeDescriptor) bool {
	return f.pattern.MatchString(td.Name)
}

// NewExpressionFilter builds a structural pattern filter. Within a segment
// "*" matches any run of characters; ".." bridges any number of segments.
func NewExpressionFilter(expression string) (TypeFilter, error) {
	if expression == "" {
		return nil, newConfigError("expression filter cannot be empty")
	}
	re, err := compileExpression(expression)
	if err != nil {
		return nil, newConfigError("invalid expression filter %q: %v", expression, err)
	}
	return &regexFilter{pattern: re}, nil
}

// compileExpression translates a structural pattern into an anchored regexp.
func compileExpression(expression string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	parts := strings.Split(expression, "..")
	for i, part := range parts {
		if i > 0 {
			b.WriteString(".*")
		}
		escaped := regexp.QuoteMeta(part)
		// QuoteMeta turned "*" into "\*"; restore it as a segment wildcard.
		escaped = strings.ReplaceAll(escaped, `\*`, `[^./]*`)
		b.WriteString(escaped)
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// BuildFilter constructs one filter from its declarative spec.
//
// Fatal errors (ConfigError): unsupported kind, malformed pattern, a custom
// type that does not implement TypeFilter. Recoverable errors (wrapping
// ErrUnresolvable): the expression names a type the catalog cannot resolve;
// callers are expected to warn and skip that single filter.
func BuildFilter(spec FilterSpec, catalog *Catalog) (TypeFilter, error) {
	switch spec.Kind {
	case KindAnnotation:
		if err := resolveName(spec.Expression, catalog); err != nil {
			return nil, err
		}
		return NewAnnotationFilter(spec.Expression), nil
	case KindAssignable:
		if err := resolveName(spec.Expression, catalog); err != nil {
			return nil, err
		}
		return NewAssignableFilter(spec.Expression), nil
	case KindExpression:
		return NewExpressionFilter(spec.Expression)
	case KindRegex:
		return NewRegexFilter(spec.Expression)
	case KindCustom:
		if catalog == nil {
			return nil, fmt.Errorf("custom filter %q: %w", spec.Expression, ErrUnresolvable)
		}
		ctor, ok := catalog.Constructor(spec.Expression)
		if !ok {
			return nil, fmt.Errorf("custom filter %q: %w", spec.Expression, ErrUnresolvable)
		}
		v := ctor()
		f, ok := v.(TypeFilter)
		if !ok {
			return nil, newConfigError("custom filter type %q does not implement TypeFilter (got %T)", spec.Expression, v)
		}
		return f, nil
	default:
		return nil, newConfigError("unsupported filter kind: %q", spec.Kind)
	}
}

// resolveName checks a referenced annotation/type name against the catalog's
// type universe. With no universe registered there is nothing to check.
func resolveName(name string, catalog *Catalog) error {
	if catalog == nil || !catalog.HasTypeUniverse() {
		return nil
	}
	if !catalog.KnownType(name) {
		return fmt.Errorf("filter references %q: %w", name, ErrUnresolvable)
	}
	return nil
}
