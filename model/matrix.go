/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// BlockMatrix describes an object's footprint. Row r, column c is occupied
// when matrix[r][c] is true. Rows may differ in length.
type BlockMatrix [][]bool

// At reports whether (r, c) is occupied. Cells outside the matrix are empty.
func (m BlockMatrix) At(r, c int) bool {
	if r < 0 || r >= len(m) {
		return false
	}
	if c < 0 || c >= len(m[r]) {
		return false
	}
	return m[r][c]
}

// UnmarshalJSON accepts both the 0/1 integers the model server sends and
// plain booleans.
func (m *BlockMatrix) UnmarshalJSON(data []byte) error {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("block matrix: %w", err)
	}
	if rows == nil {
		*m = nil
		return nil
	}

	out := make(BlockMatrix, len(rows))
	for r, row := range rows {
		out[r] = make([]bool, len(row))
		for c, cell := range row {
			v, err := truthy(cell)
			if err != nil {
				return fmt.Errorf("block matrix cell (%d,%d): %w", r, c, err)
			}
			out[r][c] = v
		}
	}
	*m = out
	return nil
}

// MarshalJSON writes cells as 0/1, the way the model server does.
func (m BlockMatrix) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for r, row := range m {
		if r > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('[')
		for c, cell := range row {
			if c > 0 {
				buf.WriteByte(',')
			}
			if cell {
				buf.WriteByte('1')
			} else {
				buf.WriteByte('0')
			}
		}
		buf.WriteByte(']')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func truthy(cell json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(cell, &b); err == nil {
		return b, nil
	}
	var n float64
	if err := json.Unmarshal(cell, &n); err != nil {
		return false, fmt.Errorf("want 0/1 or bool, got %s", cell)
	}
	return n != 0, nil
}
