// Package scenario provides the key/value context scoped to one test scenario.
//
// A fresh Context is created per scenario and passed explicitly to the DSL
// resolver, the awaiter and the payload builder; nothing reaches it through
// process-wide state. It is safe for concurrent use because listener
// callbacks and the scenario goroutine may both touch it.
package scenario

import (
	"fmt"
	"sync"

	"github.com/solatis/busprobe/internal/types"
)

// Key names a scenario context slot.
type Key string

// Well-known keys written by the runner and the awaiter.
const (
	KeyLastPayload       Key = "last_payload"
	KeyLastMatchedRecord Key = "last_matched_record"
	KeyPayloadValues     Key = "payload_values"
	KeyTestCaseID        Key = "test_case_id"
)

// Context stores scenario-scoped values.
type Context struct {
	mu    sync.RWMutex
	store map[Key]any
}

// New returns an empty scenario context.
func New() *Context {
	return &Context{store: make(map[Key]any)}
}

// Put stores value under key, replacing any previous value.
func (c *Context) Put(key Key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = value
}

// Contains reports whether key holds a non-nil value.
func (c *Context) Contains(key Key) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store[key] != nil
}

// Get returns the value under key as T.
// Returns ErrContextKeyNotFound for absent or nil values and
// ErrContextTypeMismatch when the stored value is not a T.
func Get[T any](c *Context, key Key) (T, error) {
	var zero T

	c.mu.RLock()
	value := c.store[key]
	c.mu.RUnlock()

	if value == nil {
		return zero, fmt.Errorf("%w for key: %s", types.ErrContextKeyNotFound, key)
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("%w for key '%s': expected %T but found %T",
			types.ErrContextTypeMismatch, key, zero, value)
	}
	return typed, nil
}

// PayloadValues returns a copy of the payload value map (empty when unset).
func (c *Context) PayloadValues() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	values, _ := c.store[KeyPayloadValues].(map[string]string)
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

// SetPayloadValue stores one named payload value.
func (c *Context) SetPayloadValue(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	values, _ := c.store[KeyPayloadValues].(map[string]string)
	if values == nil {
		values = make(map[string]string)
		c.store[KeyPayloadValues] = values
	}
	values[name] = value
}

// PayloadValue returns one named payload value.
func (c *Context) PayloadValue(name string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	values, _ := c.store[KeyPayloadValues].(map[string]string)
	v, ok := values[name]
	if !ok {
		return "", fmt.Errorf("%w for key: %s", types.ErrPayloadValueNotFound, name)
	}
	return v, nil
}

// LastPayload returns the last payload published in this scenario.
func (c *Context) LastPayload() (string, error) {
	return Get[string](c, KeyLastPayload)
}

// SetLastPayload records the payload most recently published.
func (c *Context) SetLastPayload(payload string) {
	c.Put(KeyLastPayload, payload)
}

// LastMatched returns the document most recently claimed by an await.
func (c *Context) LastMatched() (*types.Document, error) {
	return Get[*types.Document](c, KeyLastMatchedRecord)
}

// SetLastMatched records the document claimed by a successful await.
func (c *Context) SetLastMatched(doc *types.Document) {
	c.Put(KeyLastMatchedRecord, doc)
}
