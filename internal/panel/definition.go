package panel

import (
	"fmt"
	"time"
)

// Group places a panel on a page of the front end.
type Group string

const (
	// GroupMain panels get their own tab.
	GroupMain Group = "main"
	// GroupDashboard panels are embedded in the dashboard page.
	GroupDashboard Group = "dashboard"
)

// Encoder turns normalised, validated values into the request body.
// A nil Encoder means the endpoint takes no body.
type Encoder func(values Values) (any, error)

// Definition configures one generic form panel.
type Definition struct {
	ID         string
	Group      Group
	Endpoint   string
	TitleKey   string
	SubmitKey  string
	ResultKey  string
	FailureKey string
	Fields     []Field
	Encode     Encoder
	// Queued panels are fire-and-forget triggers that may be handed to the
	// job queue instead of being called inline.
	Queued bool
}

// Path returns the page the panel lives on.
func (d Definition) Path() string {
	if d.Group == GroupDashboard {
		return "/dashboard"
	}
	return "/panels/" + d.ID
}

// Field returns the field with the given name.
func (d Definition) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Defaults returns the initial form values at now.
func (d Definition) Defaults(now time.Time) Values {
	values := make(Values, len(d.Fields))
	for _, f := range d.Fields {
		values[f.Name] = f.defaultValue(now)
	}
	return values
}

// Normalize keeps only defined fields and rewrites them into canonical form.
func (d Definition) Normalize(raw Values) Values {
	values := make(Values, len(d.Fields))
	for _, f := range d.Fields {
		values[f.Name] = f.normalize(raw.Get(f.Name))
	}
	return values
}

// Payload builds the request body for validated values.
func (d Definition) Payload(values Values) (any, error) {
	if d.Encode == nil {
		return nil, nil
	}
	payload, err := d.Encode(values)
	if err != nil {
		return nil, fmt.Errorf("panel %s: encode: %w", d.ID, err)
	}
	return payload, nil
}

// Catalog is the ordered set of known panels.
type Catalog struct {
	defs []Definition
	byID map[string]int
}

// NewCatalog builds a catalog, rejecting duplicate or empty identifiers.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]int, len(defs))}
	for _, def := range defs {
		if def.ID == "" || def.Endpoint == "" {
			return nil, fmt.Errorf("panel: definition requires id and endpoint")
		}
		if _, exists := c.byID[def.ID]; exists {
			return nil, fmt.Errorf("panel: duplicate definition %s", def.ID)
		}
		c.byID[def.ID] = len(c.defs)
		c.defs = append(c.defs, def)
	}
	return c, nil
}

// Lookup returns the definition for id.
func (c *Catalog) Lookup(id string) (Definition, bool) {
	if c == nil {
		return Definition{}, false
	}
	idx, ok := c.byID[id]
	if !ok {
		return Definition{}, false
	}
	return c.defs[idx], true
}

// InGroup lists the definitions of a group in declaration order.
func (c *Catalog) InGroup(group Group) []Definition {
	if c == nil {
		return nil
	}
	var out []Definition
	for _, def := range c.defs {
		if def.Group == group {
			out = append(out, def)
		}
	}
	return out
}
