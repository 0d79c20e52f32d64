package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/koaarchive/koa/internal/tap"
)

const defaultLookupURL = "https://exoplanetarchive.ipac.caltech.edu/cgi-bin/Lookup/nph-lookup"

// Target is a resolved object name.
type Target struct {
	Name      string `json:"name" yaml:"name"`
	Source    string `json:"source,omitempty" yaml:"source,omitempty"`
	ObjName   string `json:"objname,omitempty" yaml:"objname,omitempty"`
	ObjType   string `json:"objtype,omitempty" yaml:"objtype,omitempty"`
	ObjDesc   string `json:"objdesc,omitempty" yaml:"objdesc,omitempty"`
	ParseName string `json:"parsename,omitempty" yaml:"parsename,omitempty"`
	RA        string `json:"ra2000" yaml:"ra2000"`   // decimal degrees
	Dec       string `json:"dec2000" yaml:"dec2000"` // decimal degrees
	CRA       string `json:"cra2000,omitempty" yaml:"cra2000,omitempty"`
	CDec      string `json:"cdec2000,omitempty" yaml:"cdec2000,omitempty"`
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	*f = flexString(data)
	return nil
}

type lookupReply struct {
	Stat      string     `json:"stat"`
	Msg       string     `json:"msg"`
	Source    flexString `json:"source"`
	ObjName   flexString `json:"objname"`
	ObjType   flexString `json:"objtype"`
	ObjDesc   flexString `json:"objdesc"`
	ParseName flexString `json:"parsename"`
	RA        flexString `json:"ra2000"`
	Dec       flexString `json:"dec2000"`
	CRA       flexString `json:"cra2000"`
	CDec      flexString `json:"cdec2000"`
}

// Lookup resolves an object name to J2000 coordinates through the NASA
// Exoplanet Archive name resolver.
func (a *Archive) Lookup(ctx context.Context, name string) (Target, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Target{}, errors.New("lookup: object name is required")
	}
	endpoint := a.lookupURL
	if endpoint == "" {
		endpoint = defaultLookupURL
	}

	body, _, err := a.get(ctx, "lookup", endpoint, url.Values{"location": {name}})
	if err != nil {
		return Target{}, err
	}
	var reply lookupReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return Target{}, tap.NewError(tap.KindProtocol, "lookup", "unreadable resolver reply", err)
	}
	if strings.EqualFold(strings.TrimSpace(reply.Stat), "error") {
		return Target{}, tap.NewError(tap.KindServer, "lookup", "object "+name+": "+strings.TrimSpace(reply.Msg), nil)
	}

	t := Target{
		Name:      name,
		Source:    string(reply.Source),
		ObjName:   string(reply.ObjName),
		ObjType:   string(reply.ObjType),
		ObjDesc:   string(reply.ObjDesc),
		ParseName: string(reply.ParseName),
		RA:        string(reply.RA),
		Dec:       string(reply.Dec),
		CRA:       string(reply.CRA),
		CDec:      string(reply.CDec),
	}
	if _, err := strconv.ParseFloat(t.RA, 64); err != nil {
		return Target{}, tap.NewError(tap.KindProtocol, "lookup", "object "+name+": missing ra2000", nil)
	}
	if _, err := strconv.ParseFloat(t.Dec, 64); err != nil {
		return Target{}, tap.NewError(tap.KindProtocol, "lookup", "object "+name+": missing dec2000", nil)
	}
	return t, nil
}
