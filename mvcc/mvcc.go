package mvcc

// ID is a transaction visibility identifier. IDs are assigned from a
// monotonically advancing counter; the id space is treated as circular so
// comparisons stay correct across wraparound.
type ID uint64

const (
	Null  ID = 0
	First ID = 1
)

// IDPrecedes reports whether id1 was assigned before id2, under circular
// comparison. Neither argument may be Null for the result to be meaningful.
func IDPrecedes(id1, id2 ID) bool {
	return int64(id2-id1) > 0
}

// Next returns the id following id, skipping the Null sentinel on wraparound.
func Next(id ID) ID {
	id++
	if id < First {
		id = First
	}
	return id
}
