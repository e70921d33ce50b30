// Package shape defines the closed algebra of configuration value shapes.
//
// A Shape describes what an option accepts: scalars, optionals, sequences,
// string-keyed mappings, tuples, tagged unions of records, records and enums.
// The set is closed; only the types in this package implement Shape.
//
// Shapes are descriptions only. Decoding and encoding are compiled from them
// by the schema package; this package supplies the scalar coercion rules,
// the value types decoding produces, and structural equality over them.
package shape

import (
	"fmt"
	"strings"
)

// Kind identifies a shape variant.
type Kind int

const (
	KindScalar Kind = iota
	KindOptional
	KindSequence
	KindMapping
	KindTuple
	KindUnion
	KindRecord
	KindEnum
)

var kindNames = [...]string{
	KindScalar:   "scalar",
	KindOptional: "optional",
	KindSequence: "sequence",
	KindMapping:  "mapping",
	KindTuple:    "tuple",
	KindUnion:    "union",
	KindRecord:   "record",
	KindEnum:     "enum",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Shape is implemented by *Scalar, *Optional, *Sequence, *Mapping, *Tuple,
// *Union, *Record and *Enum.
type Shape interface {
	Kind() Kind
	// String renders the shape as a type expression.
	String() string
	isShape()
}

// ScalarType is the primitive carried by a Scalar.
type ScalarType int

const (
	TypeBool ScalarType = iota
	TypeInt
	TypeFloat
	TypeString
)

func (t ScalarType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	}
	return fmt.Sprintf("scalar(%d)", int(t))
}

// Scalar is a primitive value with optional constraints.
type Scalar struct {
	Type ScalarType

	// Min and Max narrow the int64 range of TypeInt.
	Min, Max *int64

	// AllowNonFinite admits NaN and infinities for TypeFloat.
	AllowNonFinite bool

	// Coerce lets TypeString accept int and float input via its textual form.
	Coerce bool
}

// Optional admits a null input as the absent value.
type Optional struct {
	Inner Shape
}

// Sequence is an ordered list of items.
type Sequence struct {
	Item    Shape
	MinSize int
}

// Mapping is a string-keyed mapping. Keys are always strings.
type Mapping struct {
	Value Shape
}

// Tuple is either a fixed list of item shapes or, when Variadic is set, any
// number of items all of Items[0]'s shape.
type Tuple struct {
	Items    []Shape
	Variadic bool
}

// DefaultDiscriminator is the union tag field used when none is declared.
const DefaultDiscriminator = "type"

// Union selects one record variant by the value of its discriminator field.
type Union struct {
	Discriminator string
	Variants      []Variant
}

// Variant is one arm of a union.
type Variant struct {
	Tag    string
	Record *Record
}

// Record is an ordered set of named fields.
type Record struct {
	Name   string
	Fields []Field
}

// Field is one member of a record.
type Field struct {
	Name        string
	Shape       Shape
	Description string
	Default     any // raw default, decoded with Shape
	HasDefault  bool
	Required    bool
	Secret      bool
	Hidden      bool
}

// Enum accepts exactly one of its member names.
type Enum struct {
	Members []string
}

func (*Scalar) Kind() Kind   { return KindScalar }
func (*Optional) Kind() Kind { return KindOptional }
func (*Sequence) Kind() Kind { return KindSequence }
func (*Mapping) Kind() Kind  { return KindMapping }
func (*Tuple) Kind() Kind    { return KindTuple }
func (*Union) Kind() Kind    { return KindUnion }
func (*Record) Kind() Kind   { return KindRecord }
func (*Enum) Kind() Kind     { return KindEnum }

func (*Scalar) isShape()   {}
func (*Optional) isShape() {}
func (*Sequence) isShape() {}
func (*Mapping) isShape()  {}
func (*Tuple) isShape()    {}
func (*Union) isShape()    {}
func (*Record) isShape()   {}
func (*Enum) isShape()     {}

func (s *Scalar) String() string   { return s.Type.String() }
func (s *Optional) String() string { return "optional[" + s.Inner.String() + "]" }
func (s *Sequence) String() string { return "list[" + s.Item.String() + "]" }
func (s *Mapping) String() string  { return "map[" + s.Value.String() + "]" }

func (s *Tuple) String() string {
	if s.Variadic {
		return "tuple[" + s.Items[0].String() + ", ...]"
	}
	parts := make([]string, len(s.Items))
	for i, it := range s.Items {
		parts[i] = it.String()
	}
	return "tuple[" + strings.Join(parts, ", ") + "]"
}

func (s *Enum) String() string { return "enum[" + strings.Join(s.Members, "|") + "]" }

func (s *Record) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.Name + ": " + f.Shape.String()
	}
	return "record{" + strings.Join(parts, ", ") + "}"
}

func (s *Union) String() string {
	parts := make([]string, len(s.Variants))
	for i, v := range s.Variants {
		parts[i] = v.Tag + ": " + v.Record.String()
	}
	return "union[" + s.DiscriminatorName() + "]{" + strings.Join(parts, ", ") + "}"
}

// DiscriminatorName returns the tag field, defaulting to DefaultDiscriminator.
func (s *Union) DiscriminatorName() string {
	if s.Discriminator == "" {
		return DefaultDiscriminator
	}
	return s.Discriminator
}

// Tags lists the variant tags in declaration order.
func (s *Union) Tags() []string {
	tags := make([]string, len(s.Variants))
	for i, v := range s.Variants {
		tags[i] = v.Tag
	}
	return tags
}

// Variant looks up a variant by tag.
func (s *Union) Variant(tag string) (Variant, bool) {
	for _, v := range s.Variants {
		if v.Tag == tag {
			return v, true
		}
	}
	return Variant{}, false
}

// Field looks up a field by name.
func (s *Record) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames lists field names in declaration order.
func (s *Record) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Has reports whether name is a member.
func (s *Enum) Has(name string) bool {
	for _, m := range s.Members {
		if m == name {
			return true
		}
	}
	return false
}

// Bool returns a bool scalar.
func Bool() *Scalar { return &Scalar{Type: TypeBool} }

// Int returns an int scalar spanning the full int64 range.
func Int() *Scalar { return &Scalar{Type: TypeInt} }

// Float returns a float scalar rejecting NaN and infinities.
func Float() *Scalar { return &Scalar{Type: TypeFloat} }

// String returns a string scalar without coercion.
func String() *Scalar { return &Scalar{Type: TypeString} }

// OptionalOf wraps inner in Optional.
func OptionalOf(inner Shape) *Optional { return &Optional{Inner: inner} }

// SequenceOf returns a sequence of item.
func SequenceOf(item Shape) *Sequence { return &Sequence{Item: item} }

// MappingOf returns a string-keyed mapping to value.
func MappingOf(value Shape) *Mapping { return &Mapping{Value: value} }

// TupleOf returns a fixed-arity tuple.
func TupleOf(items ...Shape) *Tuple { return &Tuple{Items: items} }

// VariadicOf returns a homogeneous tuple of any arity.
func VariadicOf(item Shape) *Tuple { return &Tuple{Items: []Shape{item}, Variadic: true} }

// EnumOf returns an enum of members.
func EnumOf(members ...string) *Enum { return &Enum{Members: members} }

// RecordOf returns a record of fields.
func RecordOf(name string, fields ...Field) *Record { return &Record{Name: name, Fields: fields} }

// UnionOf returns a union over variants tagged by discriminator.
func UnionOf(discriminator string, variants ...Variant) *Union {
	return &Union{Discriminator: discriminator, Variants: variants}
}
