// Package objects indexes the server object tree so alarms can be scoped to
// subtrees and their source objects and zones shown by name.
package objects

import (
	"strconv"
	"sync"
)

// Object is a node in the server object tree. Objects may have several
// parents.
type Object struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Parents []int64 `json:"parents"`
}

// Zone is a network zone.
type Zone struct {
	UIN  int64  `json:"uin"`
	Name string `json:"name"`
}

// Index is a concurrency-safe lookup over objects and zones.
type Index struct {
	mu      sync.RWMutex
	objects map[int64]Object
	zones   map[int64]string
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{objects: map[int64]Object{}, zones: map[int64]string{}}
}

// Load replaces the indexed objects and zones.
func (x *Index) Load(objects []Object, zones []Zone) {
	om := make(map[int64]Object, len(objects))
	for _, o := range objects {
		om[o.ID] = o
	}
	zm := make(map[int64]string, len(zones))
	for _, z := range zones {
		zm[z.UIN] = z.Name
	}
	x.mu.Lock()
	x.objects = om
	x.zones = zm
	x.mu.Unlock()
}

// Name returns the object's name, or "[id]" for unknown objects.
func (x *Index) Name(id int64) string {
	x.mu.RLock()
	o, ok := x.objects[id]
	x.mu.RUnlock()
	if !ok || o.Name == "" {
		return "[" + strconv.FormatInt(id, 10) + "]"
	}
	return o.Name
}

// ZoneName returns the zone's name, or the UIN as text when unknown.
func (x *Index) ZoneName(uin int64) string {
	x.mu.RLock()
	name, ok := x.zones[uin]
	x.mu.RUnlock()
	if !ok || name == "" {
		return strconv.FormatInt(uin, 10)
	}
	return name
}

// IsDescendant reports whether id is root or sits anywhere below it.
func (x *Index) IsDescendant(id, root int64) bool {
	if id == root {
		return true
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	seen := map[int64]struct{}{id: {}}
	queue := []int64{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, p := range x.objects[cur].Parents {
			if p == root {
				return true
			}
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			queue = append(queue, p)
		}
	}
	return false
}
