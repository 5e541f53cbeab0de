package notion

import "time"

// PropertyType identifies the typed value a Notion property carries.
type PropertyType string

const (
	TypeTitle          PropertyType = "title"
	TypeRichText       PropertyType = "rich_text"
	TypeNumber         PropertyType = "number"
	TypeDate           PropertyType = "date"
	TypeSelect         PropertyType = "select"
	TypeMultiSelect    PropertyType = "multi_select"
	TypeCheckbox       PropertyType = "checkbox"
	TypeURL            PropertyType = "url"
	TypeEmail          PropertyType = "email"
	TypePhone          PropertyType = "phone_number"
	TypeStatus         PropertyType = "status"
	TypeRelation       PropertyType = "relation"
	TypeCreatedTime    PropertyType = "created_time"
	TypeLastEditedTime PropertyType = "last_edited_time"
	TypeCreatedBy      PropertyType = "created_by"
	TypeLastEditedBy   PropertyType = "last_edited_by"
	TypeFormula        PropertyType = "formula"
	TypeRollup         PropertyType = "rollup"
	TypePeople         PropertyType = "people"
	TypeFiles          PropertyType = "files"
	TypeUnknown        PropertyType = "unknown"
)

// Property is one typed property value on a record. Exactly the fields
// relevant to Type are populated; the rest stay zero.
type Property struct {
	Type PropertyType

	// RawType preserves the API type string when Type is TypeUnknown.
	RawType string

	Text      string     // title, rich_text, select, status, url, email, phone, names, formula strings
	Number    float64    // number, numeric formula/rollup results
	HasNumber bool       // distinguishes zero from absent
	Checked   bool       // checkbox, boolean formula results
	Time      *time.Time // date, created_time, last_edited_time
	List      []string   // multi_select option names, people names, file names
	Relations []string   // related record ids, in API order
}

// Record is an immutable snapshot of one Notion page in a database.
type Record struct {
	ID         string
	Properties map[string]Property
	Body       string
	LastEdited time.Time
}

// NewTitle builds a title property, used when creating records from
// local documents.
func NewTitle(text string) Property {
	return Property{Type: TypeTitle, Text: text}
}

// NewRichText builds a rich-text property.
func NewRichText(text string) Property {
	return Property{Type: TypeRichText, Text: text}
}

// NewNumber builds a number property.
func NewNumber(n float64) Property {
	return Property{Type: TypeNumber, Number: n, HasNumber: true}
}

// NewCheckbox builds a checkbox property.
func NewCheckbox(checked bool) Property {
	return Property{Type: TypeCheckbox, Checked: checked}
}

// NewDate builds a date property.
func NewDate(t time.Time) Property {
	return Property{Type: TypeDate, Time: &t}
}

// NewMultiSelect builds a multi-select property from option names.
func NewMultiSelect(names []string) Property {
	return Property{Type: TypeMultiSelect, List: names}
}

// TitleText returns the record's title-typed property value, or "".
func (r *Record) TitleText() string {
	for _, p := range r.Properties {
		if p.Type == TypeTitle && p.Text != "" {
			return p.Text
		}
	}
	return ""
}
