// Package areas maps raw free-text area and project names to canonical area
// names. Upstream providers report the same district under several spellings
// (English variants, legacy plot-register names, Arabic); everything written to
// the cache goes through this table first.
package areas

import (
	_ "embed"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed areas.yaml
var rawTable []byte

type tableFile struct {
	Areas []struct {
		Canonical string   `yaml:"canonical"`
		Aliases   []string `yaml:"aliases"`
	} `yaml:"areas"`
}

// Table is a pure alias -> canonical lookup. It carries no mutable state and
// is safe for concurrent use.
type Table struct {
	byAlias map[string]string
	titler  cases.Caser
}

var fold = cases.Fold()

// NewTable builds a Table from yaml bytes in the areas.yaml format.
func NewTable(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "areas: parse table")
	}

	t := &Table{
		byAlias: make(map[string]string),
		titler:  cases.Title(language.English),
	}
	for _, a := range f.Areas {
		t.byAlias[foldKey(a.Canonical)] = a.Canonical
		for _, alias := range a.Aliases {
			t.byAlias[foldKey(alias)] = a.Canonical
		}
	}
	return t, nil
}

// Default returns the Table built from the embedded alias file.
func Default() *Table {
	t, err := NewTable(rawTable)
	if err != nil {
		// The embedded table is validated by tests; a parse failure here is a
		// build defect, not a runtime condition.
		panic(err)
	}
	return t
}

// Canonical maps a raw free-text area name to its canonical form. Unknown
// names are cleaned up (trimmed, whitespace-collapsed, title-cased) and
// returned as-is so novel districts still get a stable spelling.
func (t *Table) Canonical(raw string) string {
	key := foldKey(raw)
	if key == "" {
		return ""
	}
	if canonical, ok := t.byAlias[key]; ok {
		return canonical
	}
	return t.titler.String(key)
}

// Known reports whether the raw name resolves through the alias table rather
// than the cleanup fallback.
func (t *Table) Known(raw string) bool {
	_, ok := t.byAlias[foldKey(raw)]
	return ok
}

func foldKey(s string) string {
	return strings.Join(strings.Fields(fold.String(s)), " ")
}
