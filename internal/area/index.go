package area

import (
	"encoding/json"
	"errors"
	"log"
	"sort"

	"tenki/internal/models"
)

// UnknownName is used for offices listed without a name
const UnknownName = "不明"

// ErrEmptyMetadata is returned alongside a usable (empty) document when the
// area document carries neither centers nor offices. It is not fatal.
var ErrEmptyMetadata = errors.New("area metadata has no centers or offices")

// Index maps a leaf region code to its display name
type Index map[string]string

// Name returns the display name for code, or "Area <code>" when unknown
func (i Index) Name(code string) string {
	if name, ok := i[code]; ok {
		return name
	}
	return "Area " + code
}

// Parse decodes the area document entry by entry. Entries that do not match
// the expected shape are skipped instead of failing the whole document.
func Parse(raw []byte) (models.AreaDocument, error) {
	doc := models.AreaDocument{
		Centers: map[string]models.Center{},
		Offices: map[string]models.Office{},
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return doc, ErrEmptyMetadata
	}

	for code, entry := range decodeEntries(top["centers"]) {
		var c models.Center
		if err := json.Unmarshal(entry, &c); err != nil {
			log.Printf("skipping malformed center %s: %v", code, err)
			continue
		}
		doc.Centers[code] = c
	}

	for code, entry := range decodeEntries(top["offices"]) {
		var o models.Office
		if err := json.Unmarshal(entry, &o); err != nil {
			log.Printf("skipping malformed office %s: %v", code, err)
			continue
		}
		doc.Offices[code] = o
	}

	if len(doc.Centers) == 0 && len(doc.Offices) == 0 {
		return doc, ErrEmptyMetadata
	}
	return doc, nil
}

func decodeEntries(raw json.RawMessage) map[string]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	return entries
}

// BuildIndex flattens the offices of an area document into code -> name
func BuildIndex(doc models.AreaDocument) Index {
	idx := make(Index, len(doc.Offices))
	for code, office := range doc.Offices {
		if office.Name == nil {
			idx[code] = UnknownName
			continue
		}
		idx[code] = *office.Name
	}
	return idx
}

// BuildIndexFromJSON parses raw and builds the index; malformed input yields an empty index
func BuildIndexFromJSON(raw []byte) Index {
	doc, _ := Parse(raw)
	return BuildIndex(doc)
}

// Nodes lists every center's children as selectable regions. Centers are
// ordered by code, children keep their document order.
func Nodes(doc models.AreaDocument, idx Index) []models.RegionNode {
	centerCodes := make([]string, 0, len(doc.Centers))
	for code := range doc.Centers {
		centerCodes = append(centerCodes, code)
	}
	sort.Strings(centerCodes)

	var nodes []models.RegionNode
	for _, centerCode := range centerCodes {
		for _, child := range doc.Centers[centerCode].Children {
			nodes = append(nodes, models.RegionNode{
				Code:            child,
				DisplayName:     idx.Name(child),
				ParentGroupCode: centerCode,
			})
		}
	}
	return nodes
}

// Group is a center with its regions, the shape a region picker renders
type Group struct {
	Code    string              `json:"code"`
	Name    string              `json:"name"`
	EnName  string              `json:"en_name,omitempty"`
	Regions []models.RegionNode `json:"regions"`
}

// Groups returns Nodes grouped under their center
func Groups(doc models.AreaDocument, idx Index) []Group {
	var groups []Group
	byCode := map[string]int{}
	for _, node := range Nodes(doc, idx) {
		pos, ok := byCode[node.ParentGroupCode]
		if !ok {
			center := doc.Centers[node.ParentGroupCode]
			groups = append(groups, Group{
				Code:   node.ParentGroupCode,
				Name:   center.Name,
				EnName: center.EnName,
			})
			pos = len(groups) - 1
			byCode[node.ParentGroupCode] = pos
		}
		groups[pos].Regions = append(groups[pos].Regions, node)
	}
	return groups
}
