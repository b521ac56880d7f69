// Package inifile reads and writes the INI files pgq keeps its settings in.
package inifile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// File represents a parsed INI file.
type File struct {
	Sections []Section
}

// Section represents a named section in an INI file.
type Section struct {
	Name   string     // e.g., "db", "compile"
	Values []KeyValue // preserves order
}

// KeyValue represents a key-value pair.
type KeyValue struct {
	Key   string
	Value string
}

// Parse reads an INI file from the given reader. Section names and keys are
// lowercased. A key outside any section or a line without "=" is an error.
func Parse(r io.Reader) (*File, error) {
	f := &File{}
	var currentSection *Section

	scanner := bufio.NewScanner(r)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			name := strings.ToLower(strings.TrimSpace(strings.Trim(line, "[]")))
			if name == "" {
				return nil, fmt.Errorf("line %d: empty section name", lineNo)
			}
			currentSection = f.section(name)
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: expected key = value, got %q", lineNo, line)
		}
		if currentSection == nil {
			return nil, fmt.Errorf("line %d: key %q outside of a section", lineNo, strings.TrimSpace(key))
		}
		currentSection.set(strings.ToLower(strings.TrimSpace(key)), unquote(strings.TrimSpace(value)))
	}

	return f, scanner.Err()
}

// ParseFile reads and parses an INI file from disk.
func ParseFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// unquote strips one pair of matching double quotes.
func unquote(v string) string {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		return v[1 : len(v)-1]
	}
	return v
}

// section returns the named section, appending it when missing. Repeated
// headers continue the earlier section.
func (f *File) section(name string) *Section {
	for i := range f.Sections {
		if f.Sections[i].Name == name {
			return &f.Sections[i]
		}
	}
	f.Sections = append(f.Sections, Section{Name: name})
	return &f.Sections[len(f.Sections)-1]
}

// Section returns the section with the given name (case-insensitive).
func (f *File) Section(name string) *Section {
	name = strings.ToLower(name)
	for i := range f.Sections {
		if f.Sections[i].Name == name {
			return &f.Sections[i]
		}
	}
	return nil
}

// Get returns the value for a key in a section.
func (f *File) Get(section, key string) string {
	s := f.Section(section)
	if s == nil {
		return ""
	}
	return s.Get(key)
}

// Get returns the value for a key (case-insensitive).
func (s *Section) Get(key string) string {
	key = strings.ToLower(key)
	for _, kv := range s.Values {
		if kv.Key == key {
			return kv.Value
		}
	}
	return ""
}

// set replaces the value of key, or appends it. The last assignment wins.
func (s *Section) set(key, value string) {
	for i := range s.Values {
		if s.Values[i].Key == key {
			s.Values[i].Value = value
			return
		}
	}
	s.Values = append(s.Values, KeyValue{Key: key, Value: value})
}

// Map returns the file as nested maps, section name to key to value, the
// form viper merges as configuration.
func (f *File) Map() map[string]any {
	out := make(map[string]any, len(f.Sections))
	for _, s := range f.Sections {
		values := make(map[string]any, len(s.Values))
		for _, kv := range s.Values {
			values[kv.Key] = kv.Value
		}
		out[s.Name] = values
	}
	return out
}

// FromMap builds a file from nested maps. Sections and keys are sorted;
// values are formatted with %v.
func FromMap(m map[string]any) (*File, error) {
	f := &File{}
	for _, name := range sortedKeys(m) {
		values, ok := m[name].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("section %q: expected a map of keys, got %T", name, m[name])
		}
		s := f.section(strings.ToLower(name))
		for _, key := range sortedKeys(values) {
			s.set(strings.ToLower(key), fmt.Sprint(values[key]))
		}
	}
	return f, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Write serializes the INI file to the given writer.
func (f *File) Write(w io.Writer) error {
	for i, section := range f.Sections {
		if _, err := fmt.Fprintf(w, "[%s]\n", section.Name); err != nil {
			return err
		}

		for _, kv := range section.Values {
			if _, err := fmt.Fprintf(w, "%s = %s\n", kv.Key, kv.Value); err != nil {
				return err
			}
		}

		// blank line between sections, not after the last one
		if i < len(f.Sections)-1 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteFile writes the INI file to the specified path.
func (f *File) WriteFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := f.Write(file); err != nil {
		return err
	}

	return file.Sync()
}
