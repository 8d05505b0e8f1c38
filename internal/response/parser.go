package response

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
)

// Fields is the flat attribute map of a result element. Values whose
// decimal form round-trips exactly are stored as int, everything else
// (ids like "00123" or "+5" included) as the original string.
type Fields map[string]any

// Int devuelve el valor entero de key.
func (f Fields) Int(key string) (int, bool) {
	v, ok := f[key].(int)
	return v, ok
}

// String devuelve el valor de key como texto ("" si no existe).
func (f Fields) String(key string) string {
	switch v := f[key].(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}

// Parsed is the raw outcome shared by every operation parser.
type Parsed struct {
	Fields   Fields
	Contents []string
	Fault    *Fault
}

// Matcher decide si un elemento es el que lleva el resultado.
type Matcher func(n *xmlquery.Node) bool

// LocalName coincide con el nombre local exacto, sin importar el prefijo.
func LocalName(name string) Matcher {
	return func(n *xmlquery.Node) bool { return n.Data == name }
}

// Suffix coincide con nombres locales que terminan en suffix.
func Suffix(suffix string) Matcher {
	return func(n *xmlquery.Node) bool { return strings.HasSuffix(n.Data, suffix) }
}

// Parse applies the shared response rules: non-2xx is an *HTTPError, the
// attributes of the last element accepted by match become Fields, and every
// non-blank text node is appended to Contents in document order.
// A missing result element is not an error.
func Parse(status int, body []byte, match Matcher) (*Parsed, error) {
	if !StatusOK(status) {
		return nil, &HTTPError{StatusCode: status, Fault: findFault(body)}
	}
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	p := &Parsed{Fields: Fields{}}
	walk(doc, func(n *xmlquery.Node) {
		switch n.Type {
		case xmlquery.ElementNode:
			if match != nil && match(n) {
				p.Fields = fields(n)
			}
		case xmlquery.TextNode, xmlquery.CharDataNode:
			if s := strings.TrimSpace(n.Data); s != "" {
				p.Contents = append(p.Contents, s)
			}
		}
	})
	p.Fault = faultFrom(doc)
	return p, nil
}

func walk(n *xmlquery.Node, visit func(*xmlquery.Node)) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		visit(c)
		walk(c, visit)
	}
}

func fields(n *xmlquery.Node) Fields {
	f := make(Fields, len(n.Attr))
	for _, a := range n.Attr {
		key := a.Name.Local
		if a.Name.Space != "" {
			key = a.Name.Space + ":" + a.Name.Local
		}
		if strings.HasPrefix(key, "xmlns") {
			continue
		}
		if i, err := strconv.Atoi(a.Value); err == nil && strconv.Itoa(i) == a.Value {
			f[key] = i
		} else {
			f[key] = a.Value
		}
	}
	return f
}

func findFault(body []byte) *Fault {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	return faultFrom(doc)
}

func faultFrom(doc *xmlquery.Node) *Fault {
	node := xmlquery.FindOne(doc, "//*[local-name()='Fault']")
	if node == nil {
		return nil
	}
	f := &Fault{}
	if c := xmlquery.FindOne(node, ".//*[local-name()='faultcode']"); c != nil {
		f.Code = strings.TrimSpace(c.InnerText())
	}
	if s := xmlquery.FindOne(node, ".//*[local-name()='faultstring']"); s != nil {
		f.Message = strings.TrimSpace(s.InnerText())
	}
	return f
}
