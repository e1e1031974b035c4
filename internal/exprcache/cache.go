// Package exprcache holds compiled expr-lang programs in a bounded LRU.
//
// A program is only valid for the environment and options it was compiled
// with, so each consumer owns its own Cache with fixed compile options.
package exprcache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// DefaultSize is the capacity used when a non-positive size is requested.
const DefaultSize = 1000

// Cache is a thread-safe LRU of compiled programs keyed by source text.
type Cache struct {
	mu        sync.Mutex
	entries   map[string]*list.Element
	lru       *list.List
	maxSize   int
	options   []expr.Option
	hitCount  int64
	missCount int64
}

type entry struct {
	expression string
	program    *vm.Program
}

// New creates a cache holding at most maxSize programs, each compiled with
// options.
func New(maxSize int, options ...expr.Option) *Cache {
	if maxSize < 1 {
		maxSize = DefaultSize
	}
	return &Cache{
		entries: make(map[string]*list.Element, maxSize),
		lru:     list.New(),
		maxSize: maxSize,
		options: options,
	}
}

// Program returns the compiled program for expression, compiling and caching
// it on a miss. Compile errors are not cached.
func (c *Cache) Program(expression string) (*vm.Program, error) {
	if program, ok := c.Get(expression); ok {
		return program, nil
	}
	program, err := expr.Compile(expression, c.options...)
	if err != nil {
		return nil, fmt.Errorf("exprcache: compile %q: %w", expression, err)
	}
	c.Put(expression, program)
	return program, nil
}

// Get looks up a compiled program, marking it most recently used.
func (c *Cache) Get(expression string) (*vm.Program, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[expression]
	if !ok {
		c.missCount++
		return nil, false
	}
	c.hitCount++
	c.lru.MoveToFront(elem)
	return elem.Value.(*entry).program, true
}

// Put stores program, evicting the least recently used entry when full.
func (c *Cache) Put(expression string, program *vm.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[expression]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*entry).program = program
		return
	}
	c.entries[expression] = c.lru.PushFront(&entry{expression: expression, program: program})
	c.evict()
}

// Resize changes the capacity, evicting immediately if needed.
func (c *Cache) Resize(maxSize int) {
	if maxSize < 1 {
		maxSize = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxSize = maxSize
	c.evict()
}

func (c *Cache) evict() {
	for c.lru.Len() > c.maxSize {
		elem := c.lru.Back()
		delete(c.entries, elem.Value.(*entry).expression)
		c.lru.Remove(elem)
	}
}

// Clear drops every entry. Statistics are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
}

// Len returns the number of cached programs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns the size, hit and miss counts, and the hit ratio.
func (c *Cache) Stats() (size int, hits, misses int64, ratio float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if total := c.hitCount + c.missCount; total > 0 {
		ratio = float64(c.hitCount) / float64(total)
	}
	return c.lru.Len(), c.hitCount, c.missCount, ratio
}

func (c *Cache) String() string {
	size, hits, misses, ratio := c.Stats()
	return fmt.Sprintf("exprcache{size=%d, hits=%d, misses=%d, hit_ratio=%.2f%%}", size, hits, misses, ratio*100)
}
