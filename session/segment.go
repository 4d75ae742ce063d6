/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
)

var (
	ErrReservedKey    = errors.New(`"log" is reserved`)
	ErrNoSegment      = errors.New("segment does not exist")
	ErrSegmentExists  = errors.New("segment already exists")
	ErrNoSegmentTitle = errors.New("no segment title")
)

// SegmentSignal asks the logger to cut a segment. SegmentTitle may be any
// scalar; it is used in its string form.
type SegmentSignal struct {
	SegmentTitle   any            `json:"segmentTitle"`
	AdditionalData map[string]any `json:"additionalData,omitempty"`
}

// HandleSegment cuts a segment on behalf of an application signal.
func (l *Logger) HandleSegment(sig SegmentSignal) error {
	if sig.SegmentTitle == nil {
		l.logger.Error("segment signal without title")
		return ErrNoSegmentTitle
	}
	title, ok := sig.SegmentTitle.(string)
	if !ok {
		title = fmt.Sprint(sig.SegmentTitle)
	}
	return l.AddSegment(title, sig.AdditionalData)
}

// AddSegment moves the live log under title, merges extra into it, and
// starts a fresh log with the clock and cached state reset. The config is
// kept.
func (l *Logger) AddSegment(title string, extra map[string]any) error {
	if title == LogKey {
		l.logger.Error("cannot add segment", "segment", title, "err", ErrReservedKey)
		return fmt.Errorf("segment %q: %w", title, ErrReservedKey)
	}
	if _, exists := l.data[title]; exists {
		l.logger.Error("cannot add segment", "segment", title, "err", ErrSegmentExists)
		return fmt.Errorf("segment %q: %w", title, ErrSegmentExists)
	}

	segment := map[string]any{LogKey: l.log}
	for key, value := range extra {
		if key == LogKey {
			l.logger.Warn("skipping reserved key in segment data", "segment", title)
			continue
		}
		segment[key] = value
	}
	l.data[title] = segment
	l.ClearLog()

	l.logger.Info("added segment", "segment", title, "records", len(segment[LogKey].([]Record)))
	return nil
}

// AddData stores value at the top of the data tree.
func (l *Logger) AddData(key string, value any) error {
	if key == LogKey {
		l.logger.Error("cannot add data", "key", key, "err", ErrReservedKey)
		return ErrReservedKey
	}
	l.data[key] = value
	return nil
}

// AddDataToSegment stores value inside an existing segment.
func (l *Logger) AddDataToSegment(segment, key string, value any) error {
	target, ok := l.data[segment].(map[string]any)
	if !ok {
		l.logger.Error("cannot add data to segment", "segment", segment, "err", ErrNoSegment)
		return fmt.Errorf("segment %q: %w", segment, ErrNoSegment)
	}
	if key == LogKey {
		l.logger.Error("cannot add data to segment", "segment", segment, "key", key, "err", ErrReservedKey)
		return ErrReservedKey
	}
	target[key] = value
	return nil
}

// ClearLog drops the live log and resets the clock and cached objects and
// grippers. Segments and the cached config survive.
func (l *Logger) ClearLog() {
	l.resetState()
}

// Data returns the data tree with the live log under LogKey. Segments are
// shared with the logger, not copied.
func (l *Logger) Data() map[string]any {
	tree := maps.Clone(l.data)
	tree[LogKey] = l.log
	return tree
}

// Encode serializes Data.
func (l *Logger) Encode() ([]byte, error) {
	b, err := json.Marshal(l.Data())
	if err != nil {
		return nil, fmt.Errorf("encode log: %w", err)
	}
	return b, nil
}
