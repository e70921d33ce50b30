package schema

import (
	"regexp"

	"github.com/xeipuuv/gojsonschema"

	"github.com/teranos/plugcfg/errors"
	"github.com/teranos/plugcfg/secret"
	"github.com/teranos/plugcfg/shape"
)

const (
	draft07     = "http://json-schema.org/draft-07/schema#"
	rootContext = "(root)"
)

// Document exports rec as a JSON Schema (draft-07) document, the contract
// handed to form renderers. Hidden fields carry "x-hidden"; secret fields
// are "writeOnly" and also accept the handle marker form.
func Document(rec *shape.Record) map[string]any {
	doc := recordDocument(rec, "")
	doc["$schema"] = draft07
	if rec.Name != "" {
		doc["title"] = rec.Name
	}
	return doc
}

func recordDocument(rec *shape.Record, discriminator string) map[string]any {
	props := make(map[string]any, len(rec.Fields)+1)
	var required []string
	if discriminator != "" {
		required = append(required, discriminator)
	}
	for _, f := range rec.Fields {
		props[f.Name] = fieldDocument(f)
		if f.Required && !f.HasDefault {
			required = append(required, f.Name)
		}
	}
	doc := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": true,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

func fieldDocument(f shape.Field) map[string]any {
	doc := shapeDocument(f.Shape)
	if f.Secret {
		doc = map[string]any{"anyOf": []any{doc, handleDocument()}, "writeOnly": true}
	}
	if !f.Required {
		doc = nullable(doc)
	}
	if f.Description != "" {
		doc["description"] = f.Description
	}
	if f.HasDefault && f.Default != nil {
		doc["default"] = f.Default
	}
	if f.Hidden {
		doc["x-hidden"] = true
	}
	return doc
}

func handleDocument() map[string]any {
	return map[string]any{"type": "string", "pattern": "^" + regexp.QuoteMeta(secret.Marker)}
}

func nullable(doc map[string]any) map[string]any {
	return map[string]any{"anyOf": []any{doc, map[string]any{"type": "null"}}}
}

func shapeDocument(s shape.Shape) map[string]any {
	switch t := s.(type) {
	case *shape.Scalar:
		switch t.Type {
		case shape.TypeBool:
			return map[string]any{"type": "boolean"}
		case shape.TypeInt:
			doc := map[string]any{"type": "integer"}
			if t.Min != nil {
				doc["minimum"] = *t.Min
			}
			if t.Max != nil {
				doc["maximum"] = *t.Max
			}
			return doc
		case shape.TypeFloat:
			return map[string]any{"type": "number"}
		}
		if t.Coerce {
			return map[string]any{"type": []any{"string", "number"}}
		}
		return map[string]any{"type": "string"}
	case *shape.Optional:
		return nullable(shapeDocument(t.Inner))
	case *shape.Sequence:
		doc := map[string]any{"type": "array", "items": shapeDocument(t.Item)}
		if t.MinSize > 0 {
			doc["minItems"] = t.MinSize
		}
		return doc
	case *shape.Mapping:
		return map[string]any{"type": "object", "additionalProperties": shapeDocument(t.Value)}
	case *shape.Tuple:
		if t.Variadic {
			return map[string]any{"type": "array", "items": shapeDocument(t.Items[0])}
		}
		items := make([]any, len(t.Items))
		for i, it := range t.Items {
			items[i] = shapeDocument(it)
		}
		return map[string]any{"type": "array", "items": items, "minItems": len(items), "maxItems": len(items)}
	case *shape.Enum:
		members := make([]any, len(t.Members))
		for i, m := range t.Members {
			members[i] = m
		}
		return map[string]any{"type": "string", "enum": members}
	case *shape.Record:
		return recordDocument(t, "")
	case *shape.Union:
		disc := t.DiscriminatorName()
		variants := make([]any, len(t.Variants))
		for i, v := range t.Variants {
			doc := recordDocument(v.Record, disc)
			doc["properties"].(map[string]any)[disc] = map[string]any{"const": v.Tag}
			variants[i] = doc
		}
		return map[string]any{"oneOf": variants}
	}
	return map[string]any{}
}

// ValidateDocument checks a raw record value against the exported JSON
// Schema of rec. It is a structural lint for file layers and reports every
// violation as a field error under path; Codec.Decode remains authoritative.
func ValidateDocument(path string, rec *shape.Record, raw any) error {
	loader := gojsonschema.NewGoLoader(Document(rec))
	s, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return errors.Wrapf(err, "failed to build JSON Schema for %s", path)
	}
	if raw == nil {
		raw = shape.NewMap()
	}
	result, err := s.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return errors.Wrapf(err, "failed to validate %s", path)
	}
	if result.Valid() {
		return nil
	}
	var list errors.FieldErrors
	for _, re := range result.Errors() {
		fpath := path
		if field := re.Field(); field != "" && field != rootContext {
			fpath = shape.JoinPath(path, field)
		}
		list = append(list, errors.NewFieldError(fpath, errors.Wrap(errors.ErrInvalidShape, re.Description())))
	}
	return list
}
