package statement

import "strings"

// Format describes a known bank export layout. Selecting a format skips
// header auto-detection entirely; the fixed column layout is used.
type Format struct {
	Name        string
	Comma       rune
	Mapping     ColumnMapping
	DateLayouts []string
}

// Registry holds named statement formats.
type Registry struct {
	formats map[string]Format
}

// NewRegistry creates an empty format registry.
func NewRegistry() *Registry {
	return &Registry{formats: make(map[string]Format)}
}

// Register adds a format. Panics on duplicate name.
func (r *Registry) Register(f Format) {
	key := strings.ToLower(f.Name)
	if _, ok := r.formats[key]; ok {
		panic("duplicate statement format: " + key)
	}
	r.formats[key] = f
}

// Get returns the format for name.
func (r *Registry) Get(name string) (Format, bool) {
	f, ok := r.formats[strings.ToLower(name)]
	return f, ok
}

// DefaultRegistry returns a registry with all built-in formats.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Format{
		// Nubank card export: date,category,title,amount with ISO dates
		// and purchases as positive values.
		Name:        "nubank",
		Comma:       ',',
		Mapping:     ColumnMapping{Date: 0, Description: 2, Amount: 3},
		DateLayouts: []string{"2006-01-02"},
	})
	r.Register(Format{
		// Itaú card export: data;lançamento;valor with day-first dates
		// and a comma fractional separator.
		Name:        "itau",
		Comma:       ';',
		Mapping:     ColumnMapping{Date: 0, Description: 1, Amount: 2},
		DateLayouts: []string{"02/01/2006"},
	})
	return r
}
