package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type wordFlag struct {
	Word string
	Used bool
}

// WordUsage is an ordered word -> used mapping over a session's target words.
// Its key set is fixed when it is created; merges only ever set flags to true.
// The zero value is an empty mapping.
type WordUsage struct {
	entries []wordFlag
}

// NewWordUsage returns an all-false mapping keyed by words in order.
// Duplicate words collapse to their first occurrence.
func NewWordUsage(words []string) WordUsage {
	u := WordUsage{entries: make([]wordFlag, 0, len(words))}
	for _, w := range words {
		if u.index(w) >= 0 {
			continue
		}
		u.entries = append(u.entries, wordFlag{Word: w})
	}
	return u
}

func (u WordUsage) index(word string) int {
	for i, e := range u.entries {
		if e.Word == word {
			return i
		}
	}
	return -1
}

func (u WordUsage) lookup(word string) int {
	if i := u.index(word); i >= 0 {
		return i
	}
	for i, e := range u.entries {
		if strings.EqualFold(e.Word, word) {
			return i
		}
	}
	return -1
}

// Merge returns a copy with every word reported true marked as used.
// False values and unknown words are ignored.
func (u WordUsage) Merge(reported map[string]bool) WordUsage {
	out := u.Clone()
	for word, used := range reported {
		if !used {
			continue
		}
		if i := out.lookup(word); i >= 0 {
			out.entries[i].Used = true
		}
	}
	return out
}

// Reconcile returns a mapping keyed exactly by words, carrying over the
// flags already recorded for those words. Stored blobs that drifted from
// the target words are repaired this way.
func (u WordUsage) Reconcile(words []string) WordUsage {
	out := NewWordUsage(words)
	for i := range out.entries {
		if j := u.lookup(out.entries[i].Word); j >= 0 {
			out.entries[i].Used = u.entries[j].Used
		}
	}
	return out
}

func (u WordUsage) Clone() WordUsage {
	entries := make([]wordFlag, len(u.entries))
	copy(entries, u.entries)
	return WordUsage{entries: entries}
}

func (u WordUsage) Len() int { return len(u.entries) }

func (u WordUsage) Used(word string) bool {
	if i := u.lookup(word); i >= 0 {
		return u.entries[i].Used
	}
	return false
}

func (u WordUsage) UsedCount() int {
	n := 0
	for _, e := range u.entries {
		if e.Used {
			n++
		}
	}
	return n
}

// IsComplete reports whether every target word has been used.
func (u WordUsage) IsComplete() bool {
	return len(u.entries) > 0 && u.UsedCount() == len(u.entries)
}

func (u WordUsage) Words() []string {
	out := make([]string, len(u.entries))
	for i, e := range u.entries {
		out[i] = e.Word
	}
	return out
}

func (u WordUsage) UsedWords() []string {
	var out []string
	for _, e := range u.entries {
		if e.Used {
			out = append(out, e.Word)
		}
	}
	return out
}

func (u WordUsage) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range u.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Word)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		if e.Used {
			buf.WriteString(":true")
		} else {
			buf.WriteString(":false")
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (u *WordUsage) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		u.entries = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("word usage: expected JSON object")
	}

	entries := make([]wordFlag, 0, 3)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		word, ok := tok.(string)
		if !ok {
			return fmt.Errorf("word usage: unexpected key %v", tok)
		}
		var used bool
		if err := dec.Decode(&used); err != nil {
			return fmt.Errorf("word usage: value for %q: %w", word, err)
		}
		entries = append(entries, wordFlag{Word: word, Used: used})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	u.entries = entries
	return nil
}
