package models

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ClassTable maps classifier output indices to class names. It is immutable after
// construction and safe for concurrent readers.
type ClassTable struct {
	names []string
}

func NewClassTable(names []string) (*ClassTable, error) {
	if len(names) == 0 {
		return nil, Configuration("class table is empty", ErrInvalidClassTable)
	}

	seen := make(map[string]struct{}, len(names))
	for i, name := range names {
		if strings.TrimSpace(name) == "" {
			return nil, Configuration(fmt.Sprintf("class %d has a blank name", i), ErrInvalidClassTable)
		}
		if _, ok := seen[name]; ok {
			return nil, Configuration(fmt.Sprintf("duplicate class name %q", name), ErrInvalidClassTable)
		}
		seen[name] = struct{}{}
	}

	return &ClassTable{names: append([]string(nil), names...)}, nil
}

// LoadClassTable reads a JSON array of class names.
func LoadClassTable(path string) (*ClassTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Configuration(fmt.Sprintf("class names not found: %s", path), err)
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, Configuration("class names file is invalid", err)
	}

	return NewClassTable(names)
}

func (t *ClassTable) Len() int {
	return len(t.names)
}

func (t *ClassTable) Name(i int) string {
	return t.names[i]
}

// Names returns a copy of the ordered class names.
func (t *ClassTable) Names() []string {
	return append([]string(nil), t.names...)
}
