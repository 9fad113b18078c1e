package back4app

import (
	"context"
	"net/http"
	"net/url"
	"sort"
)

// Parse field types used by the shopping classes.
const (
	TypeString = "String"
	TypeNumber = "Number"
)

type fieldType struct {
	Type string `json:"type"`
}

type classSchema struct {
	ClassName string               `json:"className"`
	Fields    map[string]fieldType `json:"fields,omitempty"`
}

// EnsureClass creates class with fields, or adds whichever fields an existing
// class lacks. It needs the master key and is safe to run repeatedly.
func (c *Client) EnsureClass(ctx context.Context, class string, fields map[string]string) error {
	path := "schemas/" + url.PathEscape(class)

	var existing classSchema
	err := c.do(ctx, http.MethodGet, path, nil, nil, &existing)
	switch {
	case IsCode(err, CodeInvalidClass):
		c.logger.Info("creating class", "class", class)
		return c.do(ctx, http.MethodPost, path, nil, classSchema{ClassName: class, Fields: toFieldTypes(fields)}, nil)
	case err != nil:
		return err
	}

	missing := make(map[string]string)
	for name, typ := range fields {
		if _, ok := existing.Fields[name]; !ok {
			missing[name] = typ
		}
	}
	if len(missing) == 0 {
		return nil
	}

	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)
	c.logger.Info("adding fields to class", "class", class, "fields", names)

	err = c.do(ctx, http.MethodPut, path, nil, classSchema{ClassName: class, Fields: toFieldTypes(missing)}, nil)
	if IsCode(err, CodeFieldExists) {
		return nil
	}
	return err
}

func toFieldTypes(fields map[string]string) map[string]fieldType {
	out := make(map[string]fieldType, len(fields))
	for name, typ := range fields {
		out[name] = fieldType{Type: typ}
	}
	return out
}
