package squash

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// IndexedString is an input line after cleaning and timestamp extraction.
type IndexedString struct {
	// Index is a monotonic integer in [0, 1_000_000) that wraps; it
	// establishes intra-Squasher ordering for the output (spec Open
	// Question (b): deliberately an int that wraps modulo 1_000_000, not
	// upgraded to a non-wrapping counter).
	Index int
	// Timestamp is the line's own embedded timestamp, or a fallback
	// (read-time, then wall-clock) if none was found.
	Timestamp time.Time
	// Value is the line text with any timestamp prefix and ANSI escapes
	// removed, and trailing whitespace stripped.
	Value string
}

func (IndexedString) isBucketEntry() {}

// FormatPending renders an IndexedString the way a pending multi-line group
// is carried forward into the next tick: "<ts_standard> <value>", so it can
// be re-fed through AddLines and re-classified from scratch.
func (ix IndexedString) FormatPending() string {
	return ix.Timestamp.Format(standardTimeLayout) + " " + ix.Value
}

// GroupMatch is a single-line pattern hit.
type GroupMatch struct {
	Name     string
	Message  string
	Source   IndexedString
	Captures map[string]string
}

func (GroupMatch) isBucketEntry() {}

// bucketEntry is the tagged-variant every by_message bucket holds: either an
// IndexedString or a GroupMatch (spec.md §9, "model as a tagged variant").
type bucketEntry interface {
	isBucketEntry()
}

// MultilineState is the state of an in-progress or completed multi-line group.
type MultilineState int

const (
	MultilineInit MultilineState = iota
	MultilineStart
	MultilineInner
	MultilineEnd
	MultilineUnmatched
)

// MultilineGroupMatch is an in-progress or completed multi-line group.
type MultilineGroupMatch struct {
	Name     string
	State    MultilineState
	Source   []IndexedString
	Captures map[string][]string
}

// orderedBuckets is an insertion-order-preserving multimap, the Go
// realization of the teacher's `state.seenFields []string` alongside a
// `map[string]interface{}` (pkg/parse/parse.go:17-20) pattern, generalized
// from "track field order" to "track bucket order".
type orderedBuckets struct {
	order   []string
	seen    map[string]bool
	entries map[string][]bucketEntry
}

func newOrderedBuckets() *orderedBuckets {
	return &orderedBuckets{seen: map[string]bool{}, entries: map[string][]bucketEntry{}}
}

func (b *orderedBuckets) append(key string, e bucketEntry) {
	if !b.seen[key] {
		b.seen[key] = true
		b.order = append(b.order, key)
	}
	b.entries[key] = append(b.entries[key], e)
}

// Squasher is a per-source stateful reducer: it ingests lines and, on
// demand, emits an ordered list of Messages plus any lines still inside an
// unfinished multi-line group.
type Squasher struct {
	byMessage        *orderedBuckets
	multilineMatches []MultilineGroupMatch
	multilineMatch   *MultilineGroupMatch

	messages []IndexedString // every line seen, including ignored ones
	numBytes int
	index    int
}

// NewSquasher returns an empty Squasher ready to ingest lines.
func NewSquasher() *Squasher {
	return &Squasher{byMessage: newOrderedBuckets()}
}

// NumBytes returns the raw byte count of everything ever passed to AddLines.
func (s *Squasher) NumBytes() int { return s.numBytes }

// NumMessages returns the count of raw input lines seen, before any
// ignore-filtering (spec.md's "messages" accounting field).
func (s *Squasher) NumMessages() int { return len(s.messages) }

// AddLines splits text on newlines and adds each non-empty, trailing-
// whitespace-stripped line. readTime, if non-zero, is the fallback
// timestamp used for lines that don't embed their own.
func (s *Squasher) AddLines(text string, readTime time.Time) {
	if strings.Contains(text, "\n") {
		s.numBytes += len(text)
	} else {
		// A one-line call simulates a newline terminator.
		s.numBytes += len(text) + 1
	}

	for _, raw := range strings.Split(text, "\n") {
		trimmed := strings.TrimRight(raw, " \t\r\v\f")
		if trimmed == "" {
			continue
		}
		s.addIndexedString(s.newIndexedString(trimmed, readTime))
	}
}

func (s *Squasher) newIndexedString(rawLine string, readTime time.Time) IndexedString {
	s.index = (s.index + 1) % 1_000_000

	cleaned := Clean(rawLine)
	ts, found, remainder := FindTimestamp(cleaned)
	if !found {
		remainder = cleaned
		switch {
		case !readTime.IsZero():
			ts = readTime
		default:
			ts = time.Now()
		}
	}
	return IndexedString{
		Index:     s.index,
		Timestamp: ts,
		Value:     strings.TrimRight(remainder, " \t\r\v\f"),
	}
}

// addIndexedString runs the per-line classification state machine described
// in spec.md §4.4.
func (s *Squasher) addIndexedString(idx IndexedString) {
	s.messages = append(s.messages, idx) // unconditional raw accounting

	if IsIgnored(idx.Value) {
		return
	}

	if s.multilineMatch != nil {
		consumed := s.extendMultiline(idx)
		if consumed {
			return
		}
		// state was Unmatched: the interrupting line falls through to be
		// classified normally, starting from multi-line initiation.
	}

	if s.multilineMatch == nil {
		if s.tryStartMultiline(idx) {
			return
		}
	}

	s.classifySingleLine(idx)
}

// extendMultiline tries to extend the in-progress multiline match with idx.
// It returns true if idx was consumed by the group (an inner match, or the
// terminating end match); false if the group closed as unmatched and idx
// must be classified normally.
func (s *Squasher) extendMultiline(idx IndexedString) bool {
	m := s.multilineMatch
	joiner := multilineJoinerByName(m.Name)

	for _, inner := range joiner.InnerPatterns {
		if groups, ok := fullSubmatch(inner, idx.Value); ok {
			m.Source = append(m.Source, idx)
			mergeMultilineCaptures(m, groups)
			m.State = MultilineInner
			return true
		}
	}

	if groups, ok := fullSubmatch(joiner.EndPattern, idx.Value); ok {
		m.Source = append(m.Source, idx)
		mergeMultilineCaptures(m, groups)
		m.State = MultilineEnd
		s.closeMultiline(m)
		s.multilineMatch = nil
		return true
	}

	m.State = MultilineUnmatched
	s.closeMultiline(m)
	s.multilineMatch = nil
	return false
}

// closeMultiline finalizes an in-progress group: completed groups are
// retained for emission; interrupted groups spill their source lines back
// through single-line classification (the group never "fired").
func (s *Squasher) closeMultiline(m *MultilineGroupMatch) {
	if len(m.Source) == 0 {
		return
	}
	if m.State != MultilineEnd {
		for _, src := range m.Source {
			s.classifySingleLine(src)
		}
		return
	}
	s.multilineMatches = append(s.multilineMatches, *m)
}

func (s *Squasher) tryStartMultiline(idx IndexedString) bool {
	for i := range MultiLineGroupableRegexes {
		joiner := &MultiLineGroupableRegexes[i]
		groups, ok := fullSubmatch(joiner.StartPattern, idx.Value)
		if !ok {
			continue
		}
		m := &MultilineGroupMatch{
			Name:     joiner.Name,
			State:    MultilineStart,
			Source:   []IndexedString{idx},
			Captures: map[string][]string{},
		}
		mergeMultilineCaptures(m, groups)
		s.multilineMatch = m
		return true
	}
	return false
}

func (s *Squasher) classifySingleLine(idx IndexedString) {
	for i := range SingleLineGroupableRegexes {
		joiner := &SingleLineGroupableRegexes[i]
		groups, ok := fullSubmatch(joiner.Pattern, idx.Value)
		if !ok {
			continue
		}
		match := GroupMatch{
			Name:     joiner.Name,
			Message:  renderTemplate(joiner.MessageFormat, groups),
			Source:   idx,
			Captures: groups,
		}
		s.byMessage.append(match.Message, match)
		return
	}
	s.byMessage.append(idx.Value, idx)
}

// PendingLines returns the source IndexedStrings of any in-progress
// multi-line group that had not yet seen its end pattern when Squash was
// last called.
func (s *Squasher) PendingLines() []IndexedString {
	if s.multilineMatch == nil {
		return nil
	}
	out := make([]IndexedString, len(s.multilineMatch.Source))
	copy(out, s.multilineMatch.Source)
	return out
}

// Squash emits Messages in index-ascending order. After it returns, callers
// may inspect PendingLines.
func (s *Squasher) Squash() []Message {
	var squashed []Message

	for _, ml := range s.multilineMatches {
		joiner := multilineJoinerByName(ml.Name)
		first := ml.Source[0]
		squashed = append(squashed, Message{
			Message:     joiner.MessageFormat,
			Timestamp:   first.Timestamp,
			Index:       first.Index,
			SourceLines: len(ml.Source),
			Info:        infoFromMultilineCaptures(ml.Captures, joiner),
		})
	}
	// A squash() call resets multi-line bookkeeping: completed groups have
	// been emitted, and in-progress ones are handed back via PendingLines.
	s.multilineMatches = nil

	for _, key := range s.byMessage.order {
		indexes, groups := splitIndexesAndGroups(s.byMessage.entries[key])

		if len(indexes) > 0 {
			switch {
			case IsGreenlit(key):
				for _, ix := range indexes {
					squashed = append(squashed, Message{
						Message:     ix.Value,
						Timestamp:   ix.Timestamp,
						Index:       ix.Index,
						SourceLines: 1,
					})
				}
			case len(indexes) == 1:
				ix := indexes[0]
				squashed = append(squashed, Message{
					Message:     ix.Value,
					Timestamp:   ix.Timestamp,
					Index:       ix.Index,
					SourceLines: 1,
				})
			default:
				first := indexes[0]
				squashed = append(squashed, Message{
					Message:     fmt.Sprintf("[%dx] %s", len(indexes), key),
					Timestamp:   first.Timestamp,
					Index:       first.Index,
					SourceLines: len(indexes),
				})
			}
		}

		if len(groups) > 0 {
			first := groups[0]
			joiner := singleLineJoinerByName(first.Name)
			squashed = append(squashed, Message{
				Message:     first.Message,
				Timestamp:   first.Source.Timestamp,
				Index:       first.Source.Index,
				SourceLines: len(groups),
				Info:        infoFromGroupMatches(groups, joiner),
			})
		}
	}
	s.byMessage = newOrderedBuckets()

	sort.SliceStable(squashed, func(i, j int) bool { return squashed[i].Index < squashed[j].Index })
	return squashed
}

// splitIndexesAndGroups separates a bucket's entries into plain
// IndexedStrings and GroupMatches. A lone GroupMatch with no raw
// IndexedStrings alongside it is demoted into indexes (spec.md §4.4: "a
// lone match is not worth summarizing").
func splitIndexesAndGroups(entries []bucketEntry) ([]IndexedString, []GroupMatch) {
	var indexes []IndexedString
	var groups []GroupMatch
	for _, e := range entries {
		switch v := e.(type) {
		case IndexedString:
			indexes = append(indexes, v)
		case GroupMatch:
			groups = append(groups, v)
		}
	}
	if len(groups) == 1 && len(indexes) == 0 {
		indexes = append(indexes, groups[0].Source)
		groups = nil
	}
	return indexes, groups
}

// infoFromGroupMatches flattens a bucket's coalesced GroupMatches into info
// fields, in joiner.Pattern's capture declaration order, restricted to
// joiner.Extras when set. A key's Values accumulate across every group in
// the bucket, one value per group that captured it.
func infoFromGroupMatches(groups []GroupMatch, joiner *GroupJoiner) []InfoField {
	var info []InfoField
	for _, key := range orderedNames(joiner.Pattern) {
		if joiner.Extras != nil && !containsString(joiner.Extras, key) {
			continue
		}
		var values []string
		for _, g := range groups {
			if v, ok := g.Captures[key]; ok {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}
		info = append(info, InfoField{Key: key, Values: values})
	}
	return info
}

// infoFromMultilineCaptures flattens a completed multi-line group's captures
// into info fields, in the order its patterns declare them.
func infoFromMultilineCaptures(captures map[string][]string, joiner *MultilineGroupJoiner) []InfoField {
	var info []InfoField
	for _, key := range multilineOrderedNames(joiner) {
		vals := captures[key]
		if len(vals) == 0 {
			continue
		}
		info = append(info, InfoField{Key: key, Values: append([]string(nil), vals...)})
	}
	return info
}

func mergeMultilineCaptures(m *MultilineGroupMatch, groups map[string]string) {
	if m.Captures == nil {
		m.Captures = map[string][]string{}
	}
	for k, v := range groups {
		m.Captures[k] = append(m.Captures[k], v)
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func multilineJoinerByName(name string) *MultilineGroupJoiner {
	for i := range MultiLineGroupableRegexes {
		if MultiLineGroupableRegexes[i].Name == name {
			return &MultiLineGroupableRegexes[i]
		}
	}
	return nil
}

func singleLineJoinerByName(name string) *GroupJoiner {
	for i := range SingleLineGroupableRegexes {
		if SingleLineGroupableRegexes[i].Name == name {
			return &SingleLineGroupableRegexes[i]
		}
	}
	return nil
}
