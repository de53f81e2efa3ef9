package area

import (
	"errors"
	"testing"
)

func TestBuildIndex_Scenario(t *testing.T) {
	raw := []byte(`{"centers":{"A":{"name":"Region A","children":["010100"]}},"offices":{"010100":{"name":"City X"}}}`)

	doc, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	idx := BuildIndex(doc)
	if len(idx) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(idx))
	}

	if idx["010100"] != "City X" {
		t.Errorf("idx[010100] = %q, want %q", idx["010100"], "City X")
	}
}

func TestBuildIndexFromJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{
			name: "two offices",
			raw:  `{"offices":{"130000":{"name":"東京都"},"016000":{"name":"石狩・空知・後志地方"}}}`,
			want: map[string]string{"130000": "東京都", "016000": "石狩・空知・後志地方"},
		},
		{
			name: "office without name",
			raw:  `{"offices":{"130000":{"enName":"Tokyo"}}}`,
			want: map[string]string{"130000": UnknownName},
		},
		{
			name: "malformed office entry is skipped",
			raw:  `{"offices":{"130000":{"name":"東京都"},"140000":"not an object"}}`,
			want: map[string]string{"130000": "東京都"},
		},
		{
			name: "offices field absent",
			raw:  `{"centers":{}}`,
			want: map[string]string{},
		},
		{
			name: "offices is an array",
			raw:  `{"offices":[1,2,3]}`,
			want: map[string]string{},
		},
		{
			name: "document is an array",
			raw:  `[]`,
			want: map[string]string{},
		},
		{
			name: "not json",
			raw:  `<html>`,
			want: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildIndexFromJSON([]byte(tt.raw))
			if got == nil {
				t.Fatal("BuildIndexFromJSON() returned nil map")
			}
			if len(got) != len(tt.want) {
				t.Fatalf("BuildIndexFromJSON() = %v, want %v", got, tt.want)
			}
			for code, name := range tt.want {
				if got[code] != name {
					t.Errorf("got[%s] = %q, want %q", code, got[code], name)
				}
			}
		})
	}
}

func TestParse_EmptyMetadata(t *testing.T) {
	for _, raw := range []string{`{}`, `[]`, `{"centers":null,"offices":null}`} {
		doc, err := Parse([]byte(raw))
		if !errors.Is(err, ErrEmptyMetadata) {
			t.Errorf("Parse(%s) error = %v, want ErrEmptyMetadata", raw, err)
		}
		if doc.Offices == nil || doc.Centers == nil {
			t.Errorf("Parse(%s) should return usable empty maps", raw)
		}
	}
}

func TestIndexName(t *testing.T) {
	idx := Index{"130000": "東京都"}

	if got := idx.Name("130000"); got != "東京都" {
		t.Errorf("Name(130000) = %q", got)
	}

	if got := idx.Name("999999"); got != "Area 999999" {
		t.Errorf("Name(999999) = %q, want fallback", got)
	}
}

func TestNodes(t *testing.T) {
	raw := []byte(`{
		"centers": {
			"010300": {"name": "関東甲信地方", "children": ["130000", "080000", "777777"]},
			"010100": {"name": "北海道地方", "children": ["016000"]}
		},
		"offices": {
			"130000": {"name": "東京都"},
			"080000": {"name": "茨城県"},
			"016000": {"name": "石狩・空知・後志地方"}
		}
	}`)

	doc, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	nodes := Nodes(doc, BuildIndex(doc))
	if len(nodes) != 4 {
		t.Fatalf("Expected 4 nodes, got %d", len(nodes))
	}

	wantCodes := []string{"016000", "130000", "080000", "777777"}
	for i, code := range wantCodes {
		if nodes[i].Code != code {
			t.Errorf("nodes[%d].Code = %s, want %s", i, nodes[i].Code, code)
		}
	}

	if nodes[0].ParentGroupCode != "010100" {
		t.Errorf("nodes[0].ParentGroupCode = %s, want 010100", nodes[0].ParentGroupCode)
	}

	if nodes[3].DisplayName != "Area 777777" {
		t.Errorf("unknown child should fall back to raw code, got %q", nodes[3].DisplayName)
	}

	groups := Groups(doc, BuildIndex(doc))
	if len(groups) != 2 {
		t.Fatalf("Expected 2 groups, got %d", len(groups))
	}
	if groups[1].Name != "関東甲信地方" || len(groups[1].Regions) != 3 {
		t.Errorf("Unexpected second group: %+v", groups[1])
	}
}
