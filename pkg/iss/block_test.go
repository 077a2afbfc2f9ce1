package iss

import (
	"encoding/json"
	"errors"
	"testing"
)

const securitiesBody = `{
  "securities": {
    "metadata": {"secid": {"type": "string"}},
    "columns": ["secid", "shortname", "YIELD"],
    "data": [
      ["RU000A0JX0J2", "ОФЗ 26207", 12.5],
      ["RU000A10B313", "Bond 2", null]
    ]
  }
}`

func TestDecodeAndPage(t *testing.T) {
	doc, err := Decode([]byte(securitiesBody))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !doc.Has("securities") {
		t.Fatal("expected securities section")
	}

	page, err := doc.Page("securities")
	if err != nil {
		t.Fatalf("Page() error = %v", err)
	}
	if page.Empty() {
		t.Fatal("page should not be empty")
	}
	if len(page.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(page.Rows))
	}

	v, err := page.Value(0, "YIELD")
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if _, ok := v.(json.Number); !ok {
		t.Errorf("YIELD cell type = %T, want json.Number", v)
	}
	if f, ok := AsFloat(v); !ok || f != 12.5 {
		t.Errorf("AsFloat(YIELD) = %v, %v; want 12.5, true", f, ok)
	}

	secids, err := page.Strings("SECID")
	if err != nil {
		t.Fatalf("Strings() error = %v", err)
	}
	if len(secids) != 2 || secids[1] != "RU000A10B313" {
		t.Errorf("Strings() = %v", secids)
	}
}

func TestDocumentPage_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		section string
	}{
		{"missing section", `{"marketdata": {"columns": [], "data": []}}`, "securities"},
		{"missing columns", `{"securities": {"data": []}}`, "securities"},
		{"ragged row", `{"securities": {"columns": ["a", "b"], "data": [["x"]]}}`, "securities"},
		{"section is not an object", `{"securities": [1, 2]}`, "securities"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Decode([]byte(tt.body))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			_, err = doc.Page(tt.section)
			if !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("Page() error = %v, want ErrMalformedResponse", err)
			}
		})
	}
}

func TestDecode_InvalidJSON(t *testing.T) {
	for _, body := range []string{``, `not json`, `null`} {
		if _, err := Decode([]byte(body)); !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("Decode(%q) error = %v, want ErrMalformedResponse", body, err)
		}
	}
}

func TestPage_EmptyDataIsNotMalformed(t *testing.T) {
	doc, err := Decode([]byte(`{"securities": {"columns": ["secid"], "data": []}}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	page, err := doc.Page("securities")
	if err != nil {
		t.Fatalf("Page() error = %v", err)
	}
	if !page.Empty() {
		t.Error("page should be empty")
	}
}
