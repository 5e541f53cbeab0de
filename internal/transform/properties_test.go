package transform

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/vonshlovens/obsync-notion/internal/config"
	"github.com/vonshlovens/obsync-notion/internal/notion"
)

type fakeResolver struct {
	titles map[string]string
}

func (f *fakeResolver) ResolveRecordTitle(ctx context.Context, recordID string) (string, error) {
	title, ok := f.titles[recordID]
	if !ok {
		return "", errors.New("not found")
	}
	return title, nil
}

func TestToFrontmatter_AutoConvert(t *testing.T) {
	props := map[string]notion.Property{
		"Name": notion.NewTitle("Hello"),
		"Done": notion.NewCheckbox(true),
	}

	fm := ToFrontmatter(context.Background(), props, nil, nil)

	if fm["name"] != "Hello" {
		t.Errorf("expected name 'Hello', got %v", fm["name"])
	}
	if fm["done"] != true {
		t.Errorf("expected done true, got %v", fm["done"])
	}
	if len(fm) != 2 {
		t.Errorf("expected exactly two keys, got %v", fm)
	}
}

func TestToFrontmatter_AutoConvertEmitsEmptyValues(t *testing.T) {
	props := map[string]notion.Property{
		"Status": {Type: notion.TypeSelect},
		"Due":    {Type: notion.TypeDate},
	}

	fm := ToFrontmatter(context.Background(), props, nil, nil)

	if v, ok := fm["status"]; !ok || v != "" {
		t.Errorf("expected empty status to be emitted, got %v (present=%v)", v, ok)
	}
	if v, ok := fm["due"]; !ok || v != "" {
		t.Errorf("expected empty due to be emitted, got %v (present=%v)", v, ok)
	}
}

func TestToFrontmatter_MappedOnly(t *testing.T) {
	props := map[string]notion.Property{
		"Name":   notion.NewTitle("Hello"),
		"Secret": notion.NewRichText("hidden"),
	}
	mappings := []config.FieldMapping{
		{NotionProperty: "Name", ObsidianProperty: "title", Type: config.MappingText},
		{NotionProperty: "Missing", ObsidianProperty: "gone", Type: config.MappingText},
	}

	fm := ToFrontmatter(context.Background(), props, mappings, nil)

	if fm["title"] != "Hello" {
		t.Errorf("expected title 'Hello', got %v", fm["title"])
	}
	if _, ok := fm["Secret"]; ok {
		t.Error("unmapped property must not be emitted")
	}
	if _, ok := fm["gone"]; ok {
		t.Error("mapping for an absent remote property must be skipped, not emitted")
	}
}

func TestToFrontmatter_MultiSelect(t *testing.T) {
	props := map[string]notion.Property{
		"Tags": notion.NewMultiSelect([]string{"go", "sync"}),
	}

	fm := ToFrontmatter(context.Background(), props, nil, nil)

	if !reflect.DeepEqual(fm["tags"], []string{"go", "sync"}) {
		t.Errorf("expected [go sync], got %v", fm["tags"])
	}
}

func TestToFrontmatter_RelationOrderAndPlaceholder(t *testing.T) {
	props := map[string]notion.Property{
		"Links": {Type: notion.TypeRelation, Relations: []string{"r1", "r2", "r3"}},
	}
	resolver := &fakeResolver{titles: map[string]string{
		"r1": "First",
		"r3": "Third",
	}}

	fm := ToFrontmatter(context.Background(), props, nil, resolver)

	want := "First, Untitled, Third"
	if fm["links"] != want {
		t.Errorf("expected %q, got %v", want, fm["links"])
	}
}

func TestToFrontmatter_UnknownType(t *testing.T) {
	props := map[string]notion.Property{
		"Odd": {Type: notion.TypeUnknown, RawType: "verification"},
	}

	fm := ToFrontmatter(context.Background(), props, nil, nil)

	if fm["odd"] != "[verification]" {
		t.Errorf("expected bracketed type tag, got %v", fm["odd"])
	}
}

func TestToProperties_RefusedWithoutMappings(t *testing.T) {
	_, err := ToProperties(map[string]any{"title": "x"}, nil)
	if !errors.Is(err, ErrNoMappings) {
		t.Fatalf("expected ErrNoMappings, got %v", err)
	}
}

func TestToProperties_Coercions(t *testing.T) {
	fm := map[string]any{
		"title": "Hello",
		"tags":  []string{"a", "b"},
		"count": "12.5",
		"done":  true,
		"due":   "2024-01-15",
	}
	mappings := []config.FieldMapping{
		{NotionProperty: "Name", ObsidianProperty: "title", Type: config.MappingText},
		{NotionProperty: "Tags", ObsidianProperty: "tags", Type: config.MappingList},
		{NotionProperty: "Count", ObsidianProperty: "count", Type: config.MappingNumber},
		{NotionProperty: "Done", ObsidianProperty: "done", Type: config.MappingCheckbox},
		{NotionProperty: "Due", ObsidianProperty: "due", Type: config.MappingDate},
	}

	props, err := ToProperties(fm, mappings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p := props["Name"]; p.Type != notion.TypeRichText || p.Text != "Hello" {
		t.Errorf("unexpected Name property: %+v", p)
	}
	if p := props["Tags"]; p.Type != notion.TypeMultiSelect || !reflect.DeepEqual(p.List, []string{"a", "b"}) {
		t.Errorf("unexpected Tags property: %+v", p)
	}
	if p := props["Count"]; p.Type != notion.TypeNumber || p.Number != 12.5 {
		t.Errorf("unexpected Count property: %+v", p)
	}
	if p := props["Done"]; p.Type != notion.TypeCheckbox || !p.Checked {
		t.Errorf("unexpected Done property: %+v", p)
	}
	p := props["Due"]
	if p.Type != notion.TypeDate || p.Time == nil {
		t.Fatalf("unexpected Due property: %+v", p)
	}
	want := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	if !p.Time.Equal(want) {
		t.Errorf("expected due %v, got %v", want, p.Time)
	}
}

func TestToProperties_InvalidNumberDropped(t *testing.T) {
	fm := map[string]any{"count": "not a number"}
	mappings := []config.FieldMapping{
		{NotionProperty: "Count", ObsidianProperty: "count", Type: config.MappingNumber},
	}

	props, err := ToProperties(fm, mappings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := props["Count"]; ok {
		t.Error("invalid number coercion must be dropped, not written as zero")
	}
}

func TestToProperties_UnknownMappingTypeSkipped(t *testing.T) {
	fm := map[string]any{"x": "y"}
	mappings := []config.FieldMapping{
		{NotionProperty: "X", ObsidianProperty: "x", Type: "mystery"},
	}

	props, err := ToProperties(fm, mappings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(props) != 0 {
		t.Errorf("expected no properties, got %v", props)
	}
}
