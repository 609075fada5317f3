package txlog

import "context"

// FailNextAppend makes the next Append on an in-memory store return err.
func FailNextAppend(s Store, err error) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.failAppend = err
	}
}

// FailNextUpdate makes the next UpdateStatus on an in-memory store return err,
// simulating a log write lost after the ledger committed.
func FailNextUpdate(s Store, err error) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.failUpdate = err
	}
}

// Lookup returns a record from an in-memory store by id.
func Lookup(s Store, id string) (Record, bool) {
	mem, ok := s.(*inMemoryStore)
	if !ok {
		return Record{}, false
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()
	rec, found := mem.records[id]
	return rec, found
}

// All returns every record of an in-memory store, newest first.
func All(s Store) []Record {
	page, _ := s.Find(context.Background(), Filter{Limit: MaxLimit})
	return page.Records
}
