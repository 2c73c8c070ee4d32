package statement

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/cardlink-dev/cardlink/internal/model"
)

// Import-time failures. All are user-correctable: re-upload, remap
// columns, or pick the right format/encoding.
var (
	ErrUnrecognizedFormat = errors.New("unrecognized statement format")
	ErrMalformedRow       = errors.New("malformed statement row")
	ErrEmptyStatement     = errors.New("empty statement")
)

// defaultDateLayouts are tried in order for formats that do not pin
// their own: day-first and ISO.
var defaultDateLayouts = []string{"02/01/2006", "2006-01-02"}

// ParseOptions controls one statement parse.
type ParseOptions struct {
	// Format selects a known bank layout by name, skipping detection.
	Format string
	// Mapping is an explicit header-name mapping, used when set and no
	// Format is selected.
	Mapping *ExplicitMapping
	// Encoding is the declared upload encoding: "utf-8" (default),
	// "latin-1"/"iso-8859-1" or "windows-1252".
	Encoding string
	// MaxRows bounds the number of data rows. 0 means no bound.
	MaxRows int
}

// Result is a parsed statement: classification is left unset here.
type Result struct {
	Lines          []model.StatementLine
	DetectedFormat string
}

// Parse converts a raw delimited statement into normalized lines. A
// single unparseable row fails the whole import; there are no partial
// parses.
func Parse(r io.Reader, reg *Registry, opts ParseOptions) (*Result, error) {
	data, err := decode(r, opts.Encoding)
	if err != nil {
		return nil, err
	}

	var (
		mapping  ColumnMapping
		layouts  = defaultDateLayouts
		comma    rune
		detected string
	)

	if opts.Format != "" {
		f, ok := reg.Get(opts.Format)
		if !ok {
			return nil, fmt.Errorf("%w: unknown format %q", ErrUnrecognizedFormat, opts.Format)
		}
		comma = f.Comma
		mapping = f.Mapping
		detected = f.Name
		if len(f.DateLayouts) > 0 {
			layouts = f.DateLayouts
		}
	} else {
		comma = sniffComma(data)
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = comma
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRow, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no header row", ErrEmptyStatement)
	}

	header, rows := records[0], records[1:]
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: header only, no data rows", ErrEmptyStatement)
	}
	if opts.MaxRows > 0 && len(rows) > opts.MaxRows {
		return nil, fmt.Errorf("%w: statement has %d rows, limit is %d", ErrMalformedRow, len(rows), opts.MaxRows)
	}

	if opts.Format == "" {
		mapping, err = ResolveMapping(header, opts.Mapping)
		if err != nil {
			return nil, err
		}
		detected = "auto"
		if opts.Mapping != nil {
			detected = "manual"
		}
	}

	lines := make([]model.StatementLine, 0, len(rows))
	for i, row := range rows {
		line, err := parseRow(row, mapping, layouts)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		lines = append(lines, line)
	}

	return &Result{Lines: lines, DetectedFormat: detected}, nil
}

func parseRow(row []string, m ColumnMapping, layouts []string) (model.StatementLine, error) {
	last := m.Date
	if m.Description > last {
		last = m.Description
	}
	if m.Amount > last {
		last = m.Amount
	}
	if last >= len(row) {
		return model.StatementLine{}, fmt.Errorf("%w: expected at least %d columns, got %d", ErrMalformedRow, last+1, len(row))
	}

	date, err := parseDate(row[m.Date], layouts)
	if err != nil {
		return model.StatementLine{}, err
	}

	amount, err := parseAmount(row[m.Amount])
	if err != nil {
		return model.StatementLine{}, err
	}

	return model.StatementLine{
		Date:           date,
		RawDescription: strings.TrimSpace(row[m.Description]),
		Amount:         amount,
	}, nil
}

func parseDate(raw string, layouts []string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable date %q", ErrMalformedRow, raw)
}

// parseAmount accepts "." or "," as the fractional separator and strips
// currency symbols and grouping. Sign is preserved as given.
func parseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	for _, sym := range []string{"R$", "$", "€", "£", " ", " "} {
		s = strings.ReplaceAll(s, sym, "")
	}

	switch {
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		// Both present: the later one is the fractional separator.
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case strings.Contains(s, ","):
		s = strings.Replace(s, ",", ".", 1)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: unparseable amount %q", ErrMalformedRow, raw)
	}
	return d, nil
}

// sniffComma picks the delimiter from the header line: semicolon wins
// when it outnumbers commas (Itaú-style exports).
func sniffComma(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

func decode(r io.Reader, name string) ([]byte, error) {
	var enc encoding.Encoding
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		enc = nil
	case "latin-1", "latin1", "iso-8859-1":
		enc = charmap.ISO8859_1
	case "windows-1252", "cp1252":
		enc = charmap.Windows1252
	default:
		return nil, fmt.Errorf("%w: unsupported encoding %q", ErrUnrecognizedFormat, name)
	}

	if enc != nil {
		r = transform.NewReader(r, enc.NewDecoder())
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRow, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrEmptyStatement)
	}
	return data, nil
}
