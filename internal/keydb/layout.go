package keydb

import (
	"encoding/xml"
	"fmt"
	"io"
)

// layoutDoc mirrors the per-device XML layout file format:
// <key block=… code=… name=… x0 y0 x1 y1> elements.
type layoutDoc struct {
	XMLName xml.Name     `xml:"layout"`
	Keys    []layoutKey  `xml:"key"`
}

type layoutKey struct {
	Block int    `xml:"block,attr"`
	Code  int    `xml:"code,attr"`
	Name  string `xml:"name,attr"`
	X0    int    `xml:"x0,attr"`
	Y0    int    `xml:"y0,attr"`
	X1    int    `xml:"x1,attr"`
	Y1    int    `xml:"y1,attr"`
}

// Layout is a parsed per-device layout file, keyed by (block, keyCode)
// just like the device-reported block layout it is matched against.
type Layout struct {
	entries map[layoutPos]layoutKey
}

type layoutPos struct {
	block int
	code  int
}

// ParseLayout reads a model_<layout_id>.xml document.
func ParseLayout(r io.Reader) (*Layout, error) {
	var doc layoutDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("keydb: parse layout: %w", err)
	}
	l := &Layout{entries: make(map[layoutPos]layoutKey, len(doc.Keys))}
	for _, k := range doc.Keys {
		l.entries[layoutPos{k.Block, k.Code}] = k
	}
	return l, nil
}

// Name returns the layout-declared name for a (block, code) pair, and
// whether one was declared. The daemon leaves a key unnamed when this
// returns false; no per-key name is read from the device.
func (l *Layout) Name(block, code int) (string, bool) {
	if l == nil {
		return "", false
	}
	k, ok := l.entries[layoutPos{block, code}]
	return k.Name, ok
}

// Rect returns the layout-declared rectangle for a (block, code) pair.
func (l *Layout) Rect(block, code int) (Rect, bool) {
	if l == nil {
		return Rect{}, false
	}
	k, ok := l.entries[layoutPos{block, code}]
	if !ok {
		return Rect{}, false
	}
	return Rect{k.X0, k.Y0, k.X1, k.Y1}, true
}
