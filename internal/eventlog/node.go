package eventlog

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Node is one XML element of an event record. Children keep document order so
// fields can be addressed by position the same way the event schema lays them
// out.
type Node struct {
	Name     string
	Attrs    map[string]string
	Text     string
	Children []*Node
}

// RawRecord is an undecoded event document as produced by a Source.
type RawRecord = *Node

// Child returns the i-th child element, or nil when the position is absent.
func (n *Node) Child(i int) *Node {
	if n == nil || i < 0 || i >= len(n.Children) {
		return nil
	}
	return n.Children[i]
}

// Attr returns the attribute value and whether it was present.
func (n *Node) Attr(name string) (string, bool) {
	if n == nil {
		return "", false
	}
	v, ok := n.Attrs[name]
	return v, ok
}

// ParseRecord parses a single <Event> document.
func ParseRecord(data []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, errors.New("no element found")
		}
		if err != nil {
			return nil, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return readElement(dec, start)
		}
	}
}

// readElement consumes tokens up to and including the end of start and returns
// the element tree. Nesting is tracked with an explicit stack.
func readElement(dec *xml.Decoder, start xml.StartElement) (*Node, error) {
	root := newNode(start)
	stack := []*Node{root}
	text := []*strings.Builder{{}}

	for len(stack) > 0 {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("unexpected end of document inside <%s>", stack[len(stack)-1].Name)
			}
			return nil, err
		}

		top := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			child := newNode(t)
			top.Children = append(top.Children, child)
			stack = append(stack, child)
			text = append(text, &strings.Builder{})
		case xml.CharData:
			text[len(text)-1].Write(t)
		case xml.EndElement:
			top.Text = text[len(text)-1].String()
			if len(top.Children) > 0 {
				// Indentation between child elements is not content.
				top.Text = strings.TrimSpace(top.Text)
			}
			stack = stack[:len(stack)-1]
			text = text[:len(text)-1]
		}
	}
	return root, nil
}

func newNode(start xml.StartElement) *Node {
	n := &Node{Name: start.Name.Local}
	if len(start.Attr) > 0 {
		n.Attrs = make(map[string]string, len(start.Attr))
		for _, a := range start.Attr {
			n.Attrs[a.Name.Local] = a.Value
		}
	}
	return n
}
