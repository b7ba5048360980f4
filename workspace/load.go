package workspace

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed samples
var samples embed.FS

// maxFileSize bounds files picked up by LoadFS. Larger files are skipped.
const maxFileSize = 1 << 20

// Record is what a file tree hands over when a file is selected.
type Record struct {
	ID      ID     `yaml:"id,omitempty" json:"id,omitempty"`
	Name    string `yaml:"name" json:"name"`
	Kind    string `yaml:"kind,omitempty" json:"kind,omitempty"`
	Content string `yaml:"content,omitempty" json:"content,omitempty"`
	// Path points at a file holding the content, relative to the manifest.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// Artifact converts r, inferring the kind from the name when unset and
// using the name as ID when no ID is given.
func (r Record) Artifact() (Artifact, error) {
	kind := KindForName(r.Name)
	if r.Kind != "" {
		k, err := ParseKind(r.Kind)
		if err != nil {
			return Artifact{}, fmt.Errorf("%s: %w", r.Name, err)
		}
		kind = k
	}

	id := r.ID
	if id == "" {
		id = ID(r.Name)
	}

	return Artifact{ID: id, Name: r.Name, Kind: kind, Content: r.Content}, nil
}

// Manifest is the YAML workspace description.
//
//	files:
//	  - name: index.html
//	    path: site/index.html
//	  - name: scratch.py
//	    content: |
//	      print("hi")
//	active: scratch.py
type Manifest struct {
	Files  []Record `yaml:"files"`
	Active string   `yaml:"active,omitempty"`
}

// LoadFS collects every regular file under fsys as an artifact, ordered by
// path. Hidden entries and files above 1MB are skipped.
func LoadFS(fsys fs.FS) ([]Artifact, error) {
	var out []Artifact
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != "." && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() || info.Size() > maxFileSize {
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		out = append(out, Artifact{
			ID:      ID(p),
			Name:    p,
			Kind:    KindForName(p),
			Content: string(data),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LoadDir loads every file below root.
func LoadDir(root string) ([]Artifact, error) {
	return LoadFS(os.DirFS(root))
}

// LoadManifest reads a YAML manifest. Record paths are resolved relative to
// the manifest's directory.
func LoadManifest(file string) (Manifest, []Artifact, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return Manifest{}, nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, nil, fmt.Errorf("parse manifest %s: %w", file, err)
	}

	dir := filepath.Dir(file)
	out := make([]Artifact, 0, len(m.Files))
	var errs []error
	for _, r := range m.Files {
		if r.Name == "" {
			errs = append(errs, errors.New("manifest entry without name"))
			continue
		}
		if r.Path != "" {
			p := r.Path
			if !filepath.IsAbs(p) {
				p = filepath.Join(dir, p)
			}
			content, err := os.ReadFile(p)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", r.Name, err))
				continue
			}
			r.Content = string(content)
		}
		a, err := r.Artifact()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, a)
	}

	return m, out, errors.Join(errs...)
}

// Samples returns the built-in starter workspace.
func Samples() []Artifact {
	sub, err := fs.Sub(samples, "samples")
	if err != nil {
		panic(err)
	}
	out, err := LoadFS(sub)
	if err != nil {
		panic(err)
	}
	return out
}

// OpenAll opens each artifact in order and then activates the first one
// named active, if any.
func (s *Store) OpenAll(artifacts []Artifact, active string) {
	for _, a := range artifacts {
		s.Open(a)
	}
	if active == "" {
		return
	}
	if a, ok := s.FindByName(active); ok {
		s.Activate(a.ID)
	}
}
