// Package cache provides a weight bounded LRU cache.
package cache

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	ErrKeyExists = errors.New("key already exists in cache")
)

// Cache stores values up to a total weight budget, evicting the least
// recently used entries once the budget is exceeded.
type Cache interface {
	Weight() int
	Budget() int
	Insert(key string, value interface{}, weight int) error
	Retrieve(key string) (interface{}, bool)
	Clear()
}

type node struct {
	next, prev *node

	key    string
	value  interface{}
	weight int
}

type cache struct {
	log *logrus.Entry

	mu     sync.Mutex
	head   *node
	tail   *node
	lookup map[string]*node
	weight int
	budget int
}

// New returns an empty cache holding at most budget total weight.
func New(budget int) Cache {
	return &cache{
		log:    logrus.StandardLogger().WithField("type", "cache"),
		lookup: make(map[string]*node),
		budget: budget,
	}
}

func (c *cache) Weight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.weight
}

func (c *cache) Budget() int {
	return c.budget
}

// Insert adds a new entry as the most recently used. Existing keys are never
// overwritten.
func (c *cache) Insert(key string, value interface{}, weight int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lookup[key]; ok {
		return ErrKeyExists
	}

	n := &node{
		key:    key,
		value:  value,
		weight: weight,
	}
	c.pushFront(n)
	c.lookup[key] = n
	c.weight += weight

	for c.weight > c.budget && c.tail != nil {
		evicted := c.tail
		c.unlink(evicted)
		delete(c.lookup, evicted.key)
		c.weight -= evicted.weight

		c.log.WithFields(logrus.Fields{
			"key":          evicted.key,
			"weight":       evicted.weight,
			"spare_weight": c.budget - c.weight,
		}).Trace("evicted cache entry")
	}

	return nil
}

// Retrieve returns the value for key, marking it as most recently used.
func (c *cache) Retrieve(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.lookup[key]
	if !ok {
		return nil, false
	}

	if n != c.head {
		c.unlink(n)
		c.pushFront(n)
	}
	return n.value, true
}

func (c *cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.head = nil
	c.tail = nil
	c.lookup = make(map[string]*node)
	c.weight = 0
}

func (c *cache) pushFront(n *node) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *cache) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.next = nil
	n.prev = nil
}
