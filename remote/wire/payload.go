// Copyright © 2025 The DraftPad authors

package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Payload is the full breakpoint description sent after an Init
// message: the breakpoint location, the captured variable snapshot,
// the paused source, the host's prepended/appended source fragments,
// and the compilation reference paths.
type Payload struct {
	// Offset is the breakpoint's statement offset within Source.
	Offset int
	Names  []string
	// Metas holds the display metadata strings, one JSON object per
	// variable.
	Metas []string
	// Values holds the encoded snapshot entries, index-aligned with
	// Names.
	Values []string
	Source string
	// Prefix and Suffix are the source fragments the host wraps the
	// visible buffer in. The client reuses its source view when they
	// are unchanged between hits.
	Prefix string
	Suffix string
	// References lists the compilation reference file paths.
	References []string
}

// Encode renders the payload to its wire line: a JSON array of
// strings with composite fields nested as JSON.
func (p Payload) Encode() (string, error) {
	names, err := json.Marshal(p.Names)
	if err != nil {
		return "", fmt.Errorf("wire: encode payload names: %w", err)
	}
	metas, err := json.Marshal(p.Metas)
	if err != nil {
		return "", fmt.Errorf("wire: encode payload metas: %w", err)
	}
	values, err := json.Marshal(p.Values)
	if err != nil {
		return "", fmt.Errorf("wire: encode payload values: %w", err)
	}
	refs, err := json.Marshal(p.References)
	if err != nil {
		return "", fmt.Errorf("wire: encode payload references: %w", err)
	}
	fields := []string{
		strconv.Itoa(p.Offset),
		string(names),
		string(metas),
		string(values),
		p.Source,
		p.Prefix,
		p.Suffix,
		string(refs),
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("wire: encode payload: %w", err)
	}
	return string(b), nil
}

// DecodePayload is the inverse of Payload.Encode.
func DecodePayload(line string) (Payload, error) {
	var fields []string
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return Payload{}, fmt.Errorf("wire: decode payload: %w", err)
	}
	if len(fields) != 8 {
		return Payload{}, fmt.Errorf("wire: payload has %d fields, want 8", len(fields))
	}
	offset, err := strconv.Atoi(fields[0])
	if err != nil {
		return Payload{}, fmt.Errorf("wire: payload offset: %w", err)
	}
	p := Payload{
		Offset: offset,
		Source: fields[4],
		Prefix: fields[5],
		Suffix: fields[6],
	}
	if err := json.Unmarshal([]byte(fields[1]), &p.Names); err != nil {
		return Payload{}, fmt.Errorf("wire: payload names: %w", err)
	}
	if err := json.Unmarshal([]byte(fields[2]), &p.Metas); err != nil {
		return Payload{}, fmt.Errorf("wire: payload metas: %w", err)
	}
	if err := json.Unmarshal([]byte(fields[3]), &p.Values); err != nil {
		return Payload{}, fmt.Errorf("wire: payload values: %w", err)
	}
	if err := json.Unmarshal([]byte(fields[7]), &p.References); err != nil {
		return Payload{}, fmt.Errorf("wire: payload references: %w", err)
	}
	return p, nil
}
