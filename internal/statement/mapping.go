package statement

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Field is one of the three logical statement columns.
type Field string

const (
	FieldDate        Field = "date"
	FieldDescription Field = "description"
	FieldAmount      Field = "amount"
)

// ColumnMapping maps the three logical fields to column indexes.
type ColumnMapping struct {
	Date        int
	Description int
	Amount      int
}

// ExplicitMapping names the header columns for each logical field, as
// supplied by the user when auto-detection fails.
type ExplicitMapping struct {
	DateColumn        string
	DescriptionColumn string
	AmountColumn      string
}

// headerSynonyms maps normalized header names to logical fields. Covers
// the pt-BR exports of the known banks plus common English names.
var headerSynonyms = map[string]Field{
	"date":             FieldDate,
	"data":             FieldDate,
	"data da compra":   FieldDate,
	"data de compra":   FieldDate,
	"posting date":     FieldDate,
	"transaction date": FieldDate,

	"description":     FieldDescription,
	"descricao":       FieldDescription,
	"title":           FieldDescription,
	"titulo":          FieldDescription,
	"lancamento":      FieldDescription,
	"historico":       FieldDescription,
	"estabelecimento": FieldDescription,
	"memo":            FieldDescription,

	"amount":     FieldAmount,
	"valor":      FieldAmount,
	"valor (r$)": FieldAmount,
	"value":      FieldAmount,
	"montante":   FieldAmount,
	"quantia":    FieldAmount,
}

// stripMarks removes combining marks, so "Descrição" and "descricao"
// compare equal.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases and strips diacritics, for case and
// accent-insensitive comparison of headers and description phrases.
func Normalize(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// DetectMapping matches header cells against the synonym table. The
// first matching column per field wins. ok is false when any of the
// three required fields is missing.
func DetectMapping(header []string) (m ColumnMapping, ok bool) {
	found := make(map[Field]int, 3)
	for i, cell := range header {
		field, known := headerSynonyms[Normalize(cell)]
		if !known {
			continue
		}
		if _, seen := found[field]; !seen {
			found[field] = i
		}
	}

	date, hasDate := found[FieldDate]
	desc, hasDesc := found[FieldDescription]
	amount, hasAmount := found[FieldAmount]
	if !hasDate || !hasDesc || !hasAmount {
		return ColumnMapping{}, false
	}
	return ColumnMapping{Date: date, Description: desc, Amount: amount}, true
}

// ResolveMapping resolves the column mapping for a header row: an
// explicit user mapping takes precedence, otherwise auto-detection.
// Fails with ErrUnrecognizedFormat when neither yields all three fields.
func ResolveMapping(header []string, explicit *ExplicitMapping) (ColumnMapping, error) {
	if explicit != nil {
		return explicit.resolve(header)
	}

	m, ok := DetectMapping(header)
	if !ok {
		return ColumnMapping{}, fmt.Errorf("%w: could not detect date, description and amount columns in header %q",
			ErrUnrecognizedFormat, strings.Join(header, ","))
	}
	return m, nil
}

func (e *ExplicitMapping) resolve(header []string) (ColumnMapping, error) {
	index := func(name string) (int, error) {
		want := Normalize(name)
		for i, cell := range header {
			if Normalize(cell) == want {
				return i, nil
			}
		}
		return 0, fmt.Errorf("%w: mapped column %q not found in header", ErrUnrecognizedFormat, name)
	}

	date, err := index(e.DateColumn)
	if err != nil {
		return ColumnMapping{}, err
	}
	desc, err := index(e.DescriptionColumn)
	if err != nil {
		return ColumnMapping{}, err
	}
	amount, err := index(e.AmountColumn)
	if err != nil {
		return ColumnMapping{}, err
	}
	return ColumnMapping{Date: date, Description: desc, Amount: amount}, nil
}
