package scan

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestFSLoader_EnumerateResources(t *testing.T) {
	fsys := fstest.MapFS{
		"base/a.yaml":        &fstest.MapFile{Data: []byte("name: A\n")},
		"base/sub/b.yaml":    &fstest.MapFile{Data: []byte("name: B\n")},
		"base/notes.txt":     &fstest.MapFile{Data: []byte("x")},
		"elsewhere/c.yaml":   &fstest.MapFile{Data: []byte("name: C\n")},
	}
	l := NewFSLoader(fsys)

	resources, err := l.EnumerateResources("base", "*.yaml")
	require.NoError(t, err)
	require.Equal(t, []Resource{
		{Path: "base/a.yaml"},
		{Path: "base/sub/b.yaml"},
	}, resources, "recursive, lexical, pattern-matched; other base paths untouched")
}

func TestFSLoader_EnumerateResources_CustomPattern(t *testing.T) {
	fsys := fstest.MapFS{
		"base/a.component.yml": &fstest.MapFile{Data: []byte("name: A\n")},
		"base/b.yaml":          &fstest.MapFile{Data: []byte("name: B\n")},
	}
	l := NewFSLoader(fsys)

	resources, err := l.EnumerateResources("base", "*.component.yml")
	require.NoError(t, err)
	require.Equal(t, []Resource{{Path: "base/a.component.yml"}}, resources)
}

func TestFSLoader_EnumerateResources_EmptyPatternUsesDefault(t *testing.T) {
	fsys := fstest.MapFS{
		"base/a.yaml": &fstest.MapFile{Data: []byte("name: A\n")},
	}
	resources, err := NewFSLoader(fsys).EnumerateResources("base", "")
	require.NoError(t, err)
	require.Len(t, resources, 1)
}

func TestFSLoader_EnumerateResources_MissingBasePath(t *testing.T) {
	_, err := NewFSLoader(fstest.MapFS{}).EnumerateResources("missing", "*.yaml")
	require.Error(t, err)
}

func TestFSLoader_LoadTypeDescriptor(t *testing.T) {
	fsys := fstest.MapFS{
		"base/svc.yaml": &fstest.MapFile{Data: []byte(`
name: app/service.UserService
annotations: [service]
meta_annotations:
  service: [component]
supertypes: [app.Service]
scope: prototype
capabilities: [factoryProcessor]
`)},
	}
	td, err := NewFSLoader(fsys).LoadTypeDescriptor(Resource{Path: "base/svc.yaml"})
	require.NoError(t, err)

	require.Equal(t, "app/service.UserService", td.Name)
	require.Equal(t, []string{"service"}, td.Annotations)
	require.Equal(t, []string{"component"}, td.MetaAnnotations["service"])
	require.Equal(t, []string{"app.Service"}, td.Supertypes)
	require.Equal(t, "prototype", td.Scope)
	require.Equal(t, []string{"factoryProcessor"}, td.Capabilities)
	require.Equal(t, "base/svc.yaml", td.Source, "source is the resource path, not manifest content")
}

func TestFSLoader_LoadTypeDescriptor_Errors(t *testing.T) {
	fsys := fstest.MapFS{
		"base/unnamed.yaml": &fstest.MapFile{Data: []byte("annotations: [x]\n")},
		"base/broken.yaml":  &fstest.MapFile{Data: []byte("{{{ not yaml")},
	}
	l := NewFSLoader(fsys)

	_, err := l.LoadTypeDescriptor(Resource{Path: "base/unnamed.yaml"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no name")

	_, err = l.LoadTypeDescriptor(Resource{Path: "base/broken.yaml"})
	require.Error(t, err)

	_, err = l.LoadTypeDescriptor(Resource{Path: "base/absent.yaml"})
	require.Error(t, err)
}
