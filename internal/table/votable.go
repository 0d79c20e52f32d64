package table

import (
	"encoding/xml"
	"fmt"
	"io"
)

type voDocument struct {
	XMLName   xml.Name
	Resources []voResource `xml:"RESOURCE"`
}

type voResource struct {
	Resources []voResource `xml:"RESOURCE"`
	Tables    []voTable    `xml:"TABLE"`
}

type voTable struct {
	Fields []voField `xml:"FIELD"`
	Data   *voData   `xml:"DATA"`
}

type voField struct {
	Name string `xml:"name,attr"`
	ID   string `xml:"ID,attr"`
}

type voData struct {
	TableData *struct {
		Rows []struct {
			Cells []string `xml:"TD"`
		} `xml:"TR"`
	} `xml:"TABLEDATA"`
	Binary  *struct{} `xml:"BINARY"`
	Binary2 *struct{} `xml:"BINARY2"`
	FITS    *struct{} `xml:"FITS"`
}

// readVOTable parses the first TABLE of a VOTable document. Only the
// TABLEDATA serialization is supported.
func readVOTable(r io.Reader) (*Table, error) {
	var doc voDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode votable: %w", err)
	}
	if doc.XMLName.Local != "VOTABLE" {
		return nil, fmt.Errorf("root element %q is not VOTABLE", doc.XMLName.Local)
	}
	vt := firstTable(doc.Resources)
	if vt == nil {
		return nil, fmt.Errorf("votable has no TABLE element")
	}

	t := &Table{}
	for _, f := range vt.Fields {
		name := f.Name
		if name == "" {
			name = f.ID
		}
		t.Columns = append(t.Columns, name)
	}
	if vt.Data == nil {
		return t, nil
	}
	if vt.Data.TableData == nil {
		return nil, fmt.Errorf("votable serialization is not TABLEDATA")
	}
	for _, tr := range vt.Data.TableData.Rows {
		row := make([]string, len(t.Columns))
		copy(row, tr.Cells)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func firstTable(resources []voResource) *voTable {
	for i := range resources {
		if len(resources[i].Tables) > 0 {
			return &resources[i].Tables[0]
		}
		if vt := firstTable(resources[i].Resources); vt != nil {
			return vt
		}
	}
	return nil
}
