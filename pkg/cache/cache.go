package cache

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrKeyExists = errors.New("key already exists in cache")

// Cache is a weight bounded LRU cache. Inserting past the budget evicts the
// least recently retrieved entries.
type Cache interface {
	SetVerbose(verbose bool)
	GetWeight() int
	GetBudget() int
	Insert(key string, value interface{}, weight int) error
	Retrieve(key string) (interface{}, bool)
	Clear()
}

type cacheNode struct {
	next   *cacheNode
	prev   *cacheNode
	key    string
	value  interface{}
	weight int
}

type cache struct {
	log *logrus.Entry

	mutex   sync.Mutex
	head    *cacheNode
	tail    *cacheNode
	lookup  map[string]*cacheNode
	weight  int
	budget  int
	verbose bool
}

// NewCache returns an empty cache with the given weight budget.
func NewCache(budget int) Cache {
	return &cache{
		log:    logrus.StandardLogger().WithField("type", "cache"),
		lookup: make(map[string]*cacheNode),
		budget: budget,
	}
}

// SetVerbose enables debug logging of evictions.
func (c *cache) SetVerbose(verbose bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.verbose = verbose
}

func (c *cache) GetWeight() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.weight
}

func (c *cache) GetBudget() int {
	return c.budget
}

// Insert adds an entry at the front of the list. Existing keys are never
// overwritten and return ErrKeyExists.
func (c *cache) Insert(key string, value interface{}, weight int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, found := c.lookup[key]; found {
		return ErrKeyExists
	}

	node := &cacheNode{
		key:    key,
		value:  value,
		weight: weight,
	}
	c.pushFront(node)

	c.lookup[key] = node
	c.weight += weight

	for c.weight > c.budget && c.tail != nil {
		evicted := c.tail
		c.unlink(evicted)
		c.weight -= evicted.weight
		delete(c.lookup, evicted.key)

		if c.verbose {
			c.log.WithFields(logrus.Fields{
				"key":          evicted.key,
				"weight":       evicted.weight,
				"spare_weight": c.budget - c.weight,
			}).Debug("evicted cache entry")
		}
	}

	return nil
}

// Retrieve returns the entry for key and marks it as most recently used.
func (c *cache) Retrieve(key string) (interface{}, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	node, found := c.lookup[key]
	if !found {
		return nil, false
	}

	if node != c.head {
		c.unlink(node)
		c.pushFront(node)
	}

	return node.value, true
}

func (c *cache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.head = nil
	c.tail = nil
	c.lookup = make(map[string]*cacheNode)
	c.weight = 0
}

func (c *cache) pushFront(node *cacheNode) {
	node.prev = nil
	node.next = c.head
	if c.head != nil {
		c.head.prev = node
	}
	c.head = node
	if c.tail == nil {
		c.tail = node
	}
}

func (c *cache) unlink(node *cacheNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		c.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
	node.next = nil
	node.prev = nil
}
