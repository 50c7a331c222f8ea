package reconcile

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"panelflow/internal/tabular"
	"panelflow/pkg/domain"
)

// Column aliases in priority order, already folded.
var (
	serialAliases       = []string{"serialnumber", "serialno", "serial", "name", "panelname"}
	typeAliases         = []string{"type", "paneltype"}
	projectAliases      = []string{"projectid", "project", "projectcode"}
	buildingAliases     = []string{"buildingid", "building", "buildingname"}
	widthAliases        = []string{"width", "dimensionswidth", "w"}
	heightAliases       = []string{"height", "dimensionsheight", "h"}
	thicknessAliases    = []string{"thickness", "dimensionsthickness", "t"}
	weightAliases       = []string{"weight", "weightkg"}
	statusAliases       = []string{"status", "currentstatus"}
	manufacturedAliases = []string{"manufactureddate", "manufacturingdate", "dateofmanufacture"}
	transmittalAliases  = []string{"transmittalnumber", "transmittalno"}
	drawingAliases      = []string{"drawingnumber", "drawingno"}
	tagAliases          = []string{"paneltag", "tag"}
	quantityAliases     = []string{"quantity", "qty"}
	areaAliases         = []string{"area"}
	issuedByAliases     = []string{"issuedby"}
	approvedByAliases   = []string{"approvedby"}
	notesAliases        = []string{"notes", "remarks"}

	itemNameAliases        = []string{"name", "itemname", "item", "title"}
	itemDescriptionAliases = []string{"description", "desc"}
	itemUnitAliases        = []string{"unit", "uom"}
)

// Excel serial day numbers accepted as dates: 1900-01-01 up to 9999-12-31.
const (
	minExcelSerial = 1
	maxExcelSerial = 2958465
)

// groupedNumber is a number whose commas are thousand separators only.
var groupedNumber = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"2 Jan 2006",
	"02-Jan-2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

func fold(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		switch r {
		case ' ', '_', '-', '.', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// cells indexes a raw row by folded label. When two labels fold to the same
// key the non-blank one wins, then the lexically smaller label, which keeps
// the result independent of map iteration order.
type cells map[string]any

func indexRow(raw tabular.Row) cells {
	out := make(cells, len(raw))
	labels := make(map[string]string, len(raw))
	for label, v := range raw {
		key := fold(label)
		if key == "" {
			continue
		}
		if prevLabel, ok := labels[key]; ok {
			prevBlank, blank := isBlank(out[key]), isBlank(v)
			if blank && !prevBlank {
				continue
			}
			if blank == prevBlank && prevLabel < label {
				continue
			}
		}
		labels[key] = label
		out[key] = v
	}
	return out
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func (c cells) lookup(aliases []string) (any, string, bool) {
	for _, alias := range aliases {
		if v, ok := c[alias]; ok && !isBlank(v) {
			return v, alias, true
		}
	}
	return nil, "", false
}

type coercer struct {
	row      int
	warnings []string
}

func (c *coercer) warnf(format string, args ...any) {
	c.warnings = append(c.warnings, fmt.Sprintf("row %d: ", c.row)+fmt.Sprintf(format, args...))
}

func (c *coercer) str(cs cells, aliases []string) Field[string] {
	v, _, ok := cs.lookup(aliases)
	if !ok {
		return Field[string]{}
	}
	s, ok := asString(v)
	if !ok {
		return Field[string]{}
	}
	return Some(s)
}

func (c *coercer) number(cs cells, aliases []string) Field[float64] {
	v, alias, ok := cs.lookup(aliases)
	if !ok {
		return Field[float64]{}
	}
	n, ok := asNumber(v)
	if !ok {
		c.warnf("%s: %v is not a number, ignored", alias, v)
		return Field[float64]{}
	}
	return Some(n)
}

func (c *coercer) date(cs cells, aliases []string) Field[domain.Date] {
	v, alias, ok := cs.lookup(aliases)
	if !ok {
		return Field[domain.Date]{}
	}
	d, ok := asDate(v)
	if !ok {
		c.warnf("%s: %v is not a date, ignored", alias, v)
		return Field[domain.Date]{}
	}
	return Some(d)
}

func asString(v any) (string, bool) {
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(val)
	default:
		s = fmt.Sprint(val)
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// asNumber accepts finite numbers. Commas are only valid as thousand
// separators, so decimal commas such as "1,5" or "1.500,25" are rejected
// rather than silently misread.
func asNumber(v any) (float64, bool) {
	var n float64
	switch val := v.(type) {
	case float64:
		n = val
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(val), " ", "")
		if s == "" {
			return 0, false
		}
		if strings.Contains(s, ",") {
			if !groupedNumber.MatchString(s) {
				return 0, false
			}
			s = strings.ReplaceAll(s, ",", "")
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func asDate(v any) (domain.Date, bool) {
	if n, ok := asNumber(v); ok {
		if n < minExcelSerial || n > maxExcelSerial {
			return "", false
		}
		t, err := excelize.ExcelDateToTime(n, false)
		if err != nil {
			return "", false
		}
		return domain.DateOf(t), true
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.DateOf(t), true
		}
	}
	return "", false
}

// NormalizePanel converts a raw row into its canonical field set. index is
// the 1-based data row number used in messages. Unparsable values become
// absent with a warning; negative measurements reject the row.
func NormalizePanel(index int, raw tabular.Row) (Row, error) {
	cs := indexRow(raw)
	c := &coercer{row: index}
	row := Row{
		Index:             index,
		SerialNumber:      c.str(cs, serialAliases),
		Type:              c.str(cs, typeAliases),
		ProjectRef:        c.str(cs, projectAliases),
		BuildingRef:       c.str(cs, buildingAliases),
		Width:             c.number(cs, widthAliases),
		Height:            c.number(cs, heightAliases),
		Thickness:         c.number(cs, thicknessAliases),
		Weight:            c.number(cs, weightAliases),
		ManufacturedDate:  c.date(cs, manufacturedAliases),
		TransmittalNumber: c.str(cs, transmittalAliases),
		DrawingNumber:     c.str(cs, drawingAliases),
		PanelTag:          c.str(cs, tagAliases),
		Quantity:          c.number(cs, quantityAliases),
		Area:              c.number(cs, areaAliases),
		IssuedBy:          c.str(cs, issuedByAliases),
		ApprovedBy:        c.str(cs, approvedByAliases),
		Notes:             c.str(cs, notesAliases),
	}
	if label, ok := c.str(cs, statusAliases).Get(); ok {
		if status, ok := domain.ParseStatus(label); ok {
			row.Status = Some(status)
		} else {
			c.warnf("status %q is not recognised, default applies", label)
		}
	}
	row.Warnings = c.warnings

	for _, m := range []struct {
		name  string
		field Field[float64]
	}{
		{"width", row.Width}, {"height", row.Height}, {"thickness", row.Thickness},
		{"weight", row.Weight}, {"quantity", row.Quantity}, {"area", row.Area},
	} {
		if v, ok := m.field.Get(); ok && v < 0 {
			return row, ValidationError{Row: index, Field: m.name, Reason: fmt.Sprintf("must not be negative, got %v", v)}
		}
	}
	return row, nil
}

// NormalizeItem converts a raw row into an item field set.
func NormalizeItem(index int, raw tabular.Row) (ItemRow, error) {
	cs := indexRow(raw)
	c := &coercer{row: index}
	row := ItemRow{
		Index:       index,
		Name:        c.str(cs, itemNameAliases),
		ProjectRef:  c.str(cs, projectAliases),
		Description: c.str(cs, itemDescriptionAliases),
		Quantity:    c.number(cs, quantityAliases),
		Unit:        c.str(cs, itemUnitAliases),
		Notes:       c.str(cs, notesAliases),
	}
	if label, ok := c.str(cs, statusAliases).Get(); ok {
		if status, ok := domain.ParseItemStatus(label); ok {
			row.Status = Some(status)
		} else {
			c.warnf("status %q is not recognised, default applies", label)
		}
	}
	row.Warnings = c.warnings
	if v, ok := row.Quantity.Get(); ok && v < 0 {
		return row, ValidationError{Row: index, Field: "quantity", Reason: fmt.Sprintf("must not be negative, got %v", v)}
	}
	return row, nil
}
