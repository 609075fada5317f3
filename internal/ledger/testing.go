package ledger

import "github.com/shopspring/decimal"

// Seed is a test helper that inserts or overwrites a row when using the
// in-memory store. A zero ID is assigned the next free identifier.
func Seed(s Store, row Row) Row {
	mem, ok := s.(*inMemoryStore)
	if !ok {
		return row
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()
	if row.Ref == "" {
		prefix := AccountPrefix
		if row.Kind == KindWallet {
			prefix = WalletPrefix
		}
		row.Ref = NewReference(prefix)
	}
	return mem.insertLocked(row)
}

// Remove deletes a row from the in-memory store, simulating an entity that
// disappeared between intake and settlement.
func Remove(s Store, kind Kind, id int64) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		delete(mem.rows, rowKey(kind, id))
	}
}

// FailNextCommit makes the next in-memory transaction fail with err after
// its callback succeeded, so none of its staged writes are applied.
func FailNextCommit(s Store, err error) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.failNext = err
	}
}

// Settlements returns how many settlement markers the in-memory store holds.
func Settlements(s Store) int {
	mem, ok := s.(*inMemoryStore)
	if !ok {
		return 0
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()
	return len(mem.settled)
}

// Amount parses a decimal literal and panics on malformed input. Test use only.
func Amount(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}
