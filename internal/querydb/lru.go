package querydb

import "container/list"

// lruIndex tracks node access order for eviction. Not self-locking: the DB
// mutex guards all calls.
type lruIndex struct {
	items map[Key]*list.Element
	order *list.List // front = most recently used
}

func newLRUIndex() *lruIndex {
	return &lruIndex{
		items: make(map[Key]*list.Element),
		order: list.New(),
	}
}

// touch marks key as most recently used, inserting it if absent.
func (l *lruIndex) touch(key Key) {
	if elem, ok := l.items[key]; ok {
		l.order.MoveToFront(elem)
		return
	}
	l.items[key] = l.order.PushFront(key)
}

// oldest returns the least recently used key.
func (l *lruIndex) oldest() (Key, bool) {
	back := l.order.Back()
	if back == nil {
		return Key{}, false
	}
	return back.Value.(Key), true
}

// remove drops key from the index.
func (l *lruIndex) remove(key Key) {
	if elem, ok := l.items[key]; ok {
		l.order.Remove(elem)
		delete(l.items, key)
	}
}
