package submission

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxPhotoSlots is the number of positional photo slots on a record.
const MaxPhotoSlots = 6

// Record is the read-only snapshot of one field submission used by the
// export pipeline. It is fetched once per export and never mutated.
type Record struct {
	ID            string
	Date          string
	Brand         string
	StoreSite     string
	StoreLocation string
	Locations     string
	Conditions    string
	ShelfSpace    string
	FacesOnShelf  string
	Notes         string
	Price         float64
	HasPrice      bool
	Tags          []string
	Priority      int
	SubmittedBy   string
	Photos        []PhotoRef
}

// PhotoRef is one positional photo slot. Ref may be an absolute URL or
// a bare storage path requiring bucket resolution.
type PhotoRef struct {
	Slot int
	Ref  string
}

// GridCell maps a slot to its anchor position in the photo grid:
// column slot%2, row block slot/2.
func (p PhotoRef) GridCell() (col, rowBlock int) {
	return p.Slot % 2, p.Slot / 2
}

// Title returns the text for the report's merged title row: the store
// site when present, otherwise the store location.
func (r Record) Title() string {
	if strings.TrimSpace(r.StoreSite) != "" {
		return strings.ToUpper(strings.TrimSpace(r.StoreSite))
	}
	return strings.ToUpper(strings.TrimSpace(r.StoreLocation))
}

// Slug returns a filename-safe fragment derived from the title.
func (r Record) Slug() string {
	title := strings.ToLower(r.Title())
	var b strings.Builder
	lastWasDash := true
	for _, c := range title {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteRune(c)
			lastWasDash = false
		default:
			if !lastWasDash {
				b.WriteByte('-')
				lastWasDash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "submission"
	}
	return slug
}

// PriceText renders the price for the report, empty when absent.
func (r Record) PriceText() string {
	if !r.HasPrice {
		return ""
	}
	return strconv.FormatFloat(r.Price, 'f', 2, 64)
}

// FromPayload parses a loosely-typed collaborator row into a Record.
// Every field is coerced at this boundary so nothing loosely typed
// reaches the export pipeline.
func FromPayload(payload map[string]any) (Record, error) {
	id, err := valueAsString(payload["id"])
	if err != nil || strings.TrimSpace(id) == "" {
		return Record{}, fmt.Errorf("submission payload missing id")
	}

	rec := Record{
		ID:            id,
		Date:          stringField(payload, "date"),
		Brand:         stringField(payload, "brand"),
		StoreSite:     stringField(payload, "store_site"),
		StoreLocation: stringField(payload, "store_location"),
		Locations:     stringField(payload, "locations"),
		Conditions:    stringField(payload, "conditions"),
		ShelfSpace:    stringField(payload, "shelf_space"),
		FacesOnShelf:  stringField(payload, "faces_on_shelf"),
		Notes:         stringField(payload, "notes"),
		SubmittedBy:   stringField(payload, "submitted_by"),
	}

	if raw, ok := payload["price"]; ok && raw != nil {
		price, err := valueAsFloat64(raw)
		if err != nil {
			return Record{}, fmt.Errorf("submission %s: price: %w", id, err)
		}
		rec.Price = price
		rec.HasPrice = true
	}

	rec.Tags = NormalizeTags(payload["tags"])
	rec.Priority = NormalizePriority(payload["priority_level"])

	for slot := 1; slot <= MaxPhotoSlots; slot++ {
		ref := stringField(payload, fmt.Sprintf("photo%d", slot))
		if ref == "" {
			continue
		}
		rec.Photos = append(rec.Photos, PhotoRef{Slot: slot - 1, Ref: ref})
	}

	return rec, nil
}

// NormalizeTags accepts the historical shapes of the tag field (real
// list, comma-joined string, or JSON array encoded as a string) and
// yields a clean list. Normalization is idempotent: feeding the joined
// output back in yields the same list.
func NormalizeTags(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case []string:
		return trimTags(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, err := valueAsString(item); err == nil {
				out = append(out, s)
			}
		}
		return trimTags(out)
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil
		}
		if strings.HasPrefix(trimmed, "[") {
			var parsed []any
			if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
				return NormalizeTags(parsed)
			}
		}
		return trimTags(strings.Split(trimmed, ","))
	default:
		if s, err := valueAsString(raw); err == nil {
			return NormalizeTags(s)
		}
		return nil
	}
}

// JoinTags renders a normalized tag list for display.
func JoinTags(tags []string) string {
	return strings.Join(tags, ", ")
}

// NormalizePriority coerces the priority field to an int in 1..3, or 0
// when absent or out of range.
func NormalizePriority(raw any) int {
	if raw == nil {
		return 0
	}
	n, err := valueAsInt64(raw)
	if err != nil {
		return 0
	}
	if n < 1 || n > 3 {
		return 0
	}
	return int(n)
}

// NormalizeDate accepts the date shapes seen in stored submissions and
// renders them as YYYY-MM-DD, passing unrecognized values through.
func NormalizeDate(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	dateFormats := []string{
		"2006-01-02",
		"1/2/2006",
		"01/02/2006",
		"2006/01/02",
		"2006-01-02T15:04:05",
		time.RFC3339,
	}
	for _, format := range dateFormats {
		if parsed, err := time.Parse(format, value); err == nil {
			return parsed.Format("2006-01-02")
		}
	}
	return value
}

func trimTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func stringField(payload map[string]any, key string) string {
	raw, ok := payload[key]
	if !ok || raw == nil {
		return ""
	}
	s, err := valueAsString(raw)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func valueAsString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10), nil
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case int:
		return strconv.Itoa(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("unexpected type for string: %T", value)
	}
}

func valueAsInt64(value any) (int64, error) {
	switch v := value.(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	default:
		return 0, fmt.Errorf("unexpected type for int64: %T", value)
	}
}

func valueAsFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("unexpected type for float64: %T", value)
	}
}
