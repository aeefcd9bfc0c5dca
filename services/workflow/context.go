package workflow

import (
	"encoding/json"
	"sort"
)

// TriggerWriter is the writer recorded for keys that came from the trigger payload.
const TriggerWriter = "$trigger"

// Entry is one write to a Context.
type Entry struct {
	Key       string `json:"key"`
	Value     any    `json:"value"`
	WrittenBy string `json:"writtenBy"`
}

// Context is the variable state threaded through a run. It is an
// append-only log of writes: reading a key returns its latest write, and
// every earlier write stays visible through History. A Context is never
// mutated; With returns a new one.
type Context struct {
	entries []Entry
	latest  map[string]int
}

// NewContext seeds a context from a trigger payload. Keys are recorded in
// sorted order so the log is deterministic.
func NewContext(initial map[string]any) *Context {
	c := &Context{latest: make(map[string]int, len(initial))}

	keys := make([]string, 0, len(initial))
	for k := range initial {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		c.latest[k] = len(c.entries)
		c.entries = append(c.entries, Entry{Key: k, Value: initial[k], WrittenBy: TriggerWriter})
	}
	return c
}

// With returns a copy of c with key set to value, attributed to writer.
func (c *Context) With(key string, value any, writer string) *Context {
	next := &Context{
		entries: make([]Entry, len(c.entries), len(c.entries)+1),
		latest:  make(map[string]int, len(c.latest)+1),
	}
	copy(next.entries, c.entries)
	for k, i := range c.latest {
		next.latest[k] = i
	}

	next.latest[key] = len(next.entries)
	next.entries = append(next.entries, Entry{Key: key, Value: value, WrittenBy: writer})
	return next
}

// Get returns the latest value written for key.
func (c *Context) Get(key string) (any, bool) {
	i, ok := c.latest[key]
	if !ok {
		return nil, false
	}
	return c.entries[i].Value, true
}

// WrittenBy returns who made the latest write to key.
func (c *Context) WrittenBy(key string) (string, bool) {
	i, ok := c.latest[key]
	if !ok {
		return "", false
	}
	return c.entries[i].WrittenBy, true
}

// History returns every write to key, oldest first.
func (c *Context) History(key string) []Entry {
	var out []Entry
	for _, e := range c.entries {
		if e.Key == key {
			out = append(out, e)
		}
	}
	return out
}

// Entries returns the full write log.
func (c *Context) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

// Len is the number of distinct keys.
func (c *Context) Len() int {
	return len(c.latest)
}

// Map flattens the log into key -> latest value. Templates render against it.
func (c *Context) Map() map[string]any {
	out := make(map[string]any, len(c.latest))
	for k, i := range c.latest {
		out[k] = c.entries[i].Value
	}
	return out
}

// Writers maps each key to the writer of its latest value.
func (c *Context) Writers() map[string]string {
	out := make(map[string]string, len(c.latest))
	for k, i := range c.latest {
		out[k] = c.entries[i].WrittenBy
	}
	return out
}

// MarshalJSON encodes the flattened values.
func (c *Context) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Map())
}
