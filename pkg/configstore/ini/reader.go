// Package ini is the file-reader collaborator referenced by spec §4.D and
// used by pkg/configstore to parse config.ini.N and <cluster>.ini.N. It
// owns comment/section/key lexing (the original's add_comment, add_section,
// add_key) on top of gopkg.in/ini.v1's tokenizer; pkg/configstore supplies
// the validation, defaulting and id-assignment logic on top of it.
package ini

import (
	"gopkg.in/ini.v1"
)

// Section is one [section] block with its key/value pairs (key order is
// not kept).
type Section struct {
	Name string
	Keys map[string]string
}

// File is a parsed INI document: an ordered list of sections (default
// section, if any, comes first as returned by the underlying library).
type File struct {
	Sections []Section
}

// Load reads path as an INI document.
func Load(path string) (*File, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{AllowBooleanKeys: true, AllowNonUniqueSections: true}, path)
	if err != nil {
		return nil, err
	}
	return fromIniFile(cfg), nil
}

// Parse reads an INI document from raw bytes (used for wire-delivered or
// in-memory bootstrap configuration, see LoadClusterFromINI).
func Parse(data []byte) (*File, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{AllowBooleanKeys: true, AllowNonUniqueSections: true}, data)
	if err != nil {
		return nil, err
	}
	return fromIniFile(cfg), nil
}

func fromIniFile(cfg *ini.File) *File {
	f := &File{}
	for _, s := range cfg.Sections() {
		if s.Name() == ini.DefaultSection && len(s.Keys()) == 0 {
			continue
		}
		sec := Section{Name: s.Name(), Keys: make(map[string]string)}
		for _, k := range s.Keys() {
			sec.Keys[k.Name()] = k.Value()
		}
		f.Sections = append(f.Sections, sec)
	}
	return f
}

// SectionsNamed returns every section whose name matches name exactly,
// preserving file order (a cluster's node sections repeat a kind name
// once per node, e.g. multiple "data server" sections).
func (f *File) SectionsNamed(name string) []Section {
	var out []Section
	for _, s := range f.Sections {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}
