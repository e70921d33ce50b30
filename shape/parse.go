package shape

import (
	"strings"
	"unicode"

	"github.com/teranos/plugcfg/errors"
)

// Parse reads a type expression:
//
//	bool | int | float | string
//	optional[T] | T?
//	list[T]
//	map[T]                 (keys are always strings)
//	tuple[T1, T2, ...]     fixed arity
//	tuple[T, ...]          homogeneous, any arity
//	enum[a|b|c]
//
// Records and unions have no expression form; they are declared
// structurally.
func Parse(expr string) (Shape, error) {
	p := &parser{src: expr, toks: lex(expr)}
	s, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, p.errorf("unexpected %q", p.peek())
	}
	return s, nil
}

// MustParse is Parse for expressions known to be valid.
func MustParse(expr string) Shape {
	s, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return s
}

func lex(src string) []string {
	var toks []string
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case strings.HasPrefix(string(rs[i:]), "..."):
			toks = append(toks, "...")
			i += 3
		case strings.ContainsRune("[],|?", r):
			toks = append(toks, string(r))
			i++
		default:
			j := i
			for j < len(rs) && !unicode.IsSpace(rs[j]) && !strings.ContainsRune("[],|?", rs[j]) {
				if strings.HasPrefix(string(rs[j:]), "...") {
					break
				}
				j++
			}
			toks = append(toks, string(rs[i:j]))
			i = j
		}
	}
	return toks
}

type parser struct {
	src  string
	toks []string
	pos  int
}

func (p *parser) done() bool { return p.pos >= len(p.toks) }

func (p *parser) peek() string {
	if p.done() {
		return ""
	}
	return p.toks[p.pos]
}

func (p *parser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) expect(tok string) error {
	if got := p.next(); got != tok {
		if got == "" {
			return p.errorf("expected %q at end of input", tok)
		}
		return p.errorf("expected %q, got %q", tok, got)
	}
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return errors.Wrapf(errors.WithMessagef(errors.ErrInvalidShape, format, args...), "type %q", p.src)
}

func (p *parser) parseType() (Shape, error) {
	s, err := p.parseBase()
	if err != nil {
		return nil, err
	}
	for p.peek() == "?" {
		p.next()
		s = OptionalOf(s)
	}
	return s, nil
}

func (p *parser) parseBase() (Shape, error) {
	name := strings.ToLower(p.next())
	switch name {
	case "":
		return nil, p.errorf("missing type")
	case "bool", "boolean":
		return Bool(), nil
	case "int", "integer":
		return Int(), nil
	case "float", "number", "double":
		return Float(), nil
	case "str", "string":
		return String(), nil
	case "optional", "list", "seq", "sequence", "map", "dict":
		if err := p.expect("["); err != nil {
			return nil, err
		}
		inner, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if err := p.expect("]"); err != nil {
			return nil, err
		}
		switch name {
		case "optional":
			return OptionalOf(inner), nil
		case "map", "dict":
			return MappingOf(inner), nil
		}
		return SequenceOf(inner), nil
	case "tuple":
		return p.parseTuple()
	case "enum":
		return p.parseEnum()
	case "record", "union":
		return nil, p.errorf("%s types are declared structurally, not as expressions", name)
	}
	return nil, p.errorf("unknown type %q", name)
}

func (p *parser) parseTuple() (Shape, error) {
	if err := p.expect("["); err != nil {
		return nil, err
	}
	var items []Shape
	for {
		item, err := p.parseType()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		tok := p.next()
		if tok == "]" {
			return TupleOf(items...), nil
		}
		if tok != "," {
			return nil, p.errorf("expected \",\" or \"]\" in tuple, got %q", tok)
		}
		if p.peek() == "..." {
			p.next()
			if len(items) != 1 {
				return nil, p.errorf("variadic tuple takes exactly one item type")
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			return VariadicOf(items[0]), nil
		}
	}
}

func (p *parser) parseEnum() (Shape, error) {
	if err := p.expect("["); err != nil {
		return nil, err
	}
	var members []string
	for {
		m := p.next()
		if m == "" || strings.ContainsAny(m, "[],|?") || m == "..." {
			return nil, p.errorf("expected enum member, got %q", m)
		}
		members = append(members, m)
		tok := p.next()
		if tok == "]" {
			return EnumOf(members...), nil
		}
		if tok != "|" && tok != "," {
			return nil, p.errorf("expected \"|\" or \"]\" in enum, got %q", tok)
		}
	}
}
