package convert

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format describes how pages are stored locally.
type Format struct {
	// Name is the converter-level format name, e.g. "org" or "gfm".
	Name string `yaml:"name"`

	// Extension is the page file extension without the leading dot.
	Extension string `yaml:"extension"`

	// Verbatim is the inline code delimiter of the format. Entity
	// references are wrapped in it so the format does not parse them.
	// Empty disables reference protection.
	Verbatim string `yaml:"verbatim"`
}

// Formats is a table of local formats keyed by name.
type Formats map[string]Format

// DefaultFormats returns the built-in format table.
func DefaultFormats() Formats {
	return Formats{
		"org":      {Name: "org", Extension: "org", Verbatim: "="},
		"markdown": {Name: "markdown", Extension: "md", Verbatim: "`"},
		"gfm":      {Name: "gfm", Extension: "md", Verbatim: "`"},
		"rst":      {Name: "rst", Extension: "rst", Verbatim: "``"},
		HTML:       {Name: HTML, Extension: "html"},
	}
}

type formatsFile struct {
	Formats []Format `yaml:"formats"`
}

// LoadFormats returns the built-in table extended by the YAML file at
// path. Entries in the file replace built-ins of the same name. An empty
// path returns the defaults.
func LoadFormats(path string) (Formats, error) {
	formats := DefaultFormats()
	if path == "" {
		return formats, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading formats file: %w", err)
	}

	var file formatsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing formats file %s: %w", path, err)
	}

	for i, f := range file.Formats {
		f.Name = strings.ToLower(strings.TrimSpace(f.Name))
		f.Extension = strings.TrimPrefix(strings.TrimSpace(f.Extension), ".")

		if f.Name == "" || f.Extension == "" {
			return nil, fmt.Errorf("formats file %s: entry %d needs a name and an extension", path, i)
		}

		formats[f.Name] = f
	}

	return formats, nil
}

// Lookup returns the format called name.
func (fs Formats) Lookup(name string) (Format, error) {
	f, ok := fs[strings.ToLower(name)]
	if !ok {
		return Format{}, fmt.Errorf("unknown format %q (known: %s)", name, strings.Join(fs.Names(), ", "))
	}

	return f, nil
}

// Names returns the sorted format names.
func (fs Formats) Names() []string {
	return slices.Sorted(maps.Keys(fs))
}

// FileName returns the file name of a page stored in this format.
func (f Format) FileName(page string) string {
	return page + "." + f.Extension
}

// PageName returns the page name of a file stored in this format, and
// whether the file belongs to the format at all.
func (f Format) PageName(file string) (string, bool) {
	name, ok := strings.CutSuffix(file, "."+f.Extension)
	if !ok || name == "" {
		return "", false
	}

	return name, true
}
