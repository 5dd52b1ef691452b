package wal

import (
	"fmt"
)

const (
	// NullPageID and NullOffset together form the null log sequence address.
	NullPageID int64  = -1
	NullOffset uint16 = 0xFFFF

	// HeaderPageID is the logical page id of the log header page. It is the
	// first page of the infinite log and never carries records.
	HeaderPageID int64 = -9
)

// Lsa is a log sequence address: the position of a log record as the pair of
// a logical page id and a byte offset into that page's record area. Lsas are
// totally ordered, page id first.
type Lsa struct {
	PageID int64
	Offset uint16
}

var NullLsa = Lsa{PageID: NullPageID, Offset: NullOffset}

func (lsa Lsa) IsNull() bool {
	return lsa.PageID == NullPageID
}

func (lsa Lsa) Less(lsa2 Lsa) bool {
	if lsa.PageID != lsa2.PageID {
		return lsa.PageID < lsa2.PageID
	}
	return lsa.Offset < lsa2.Offset
}

func (lsa Lsa) LessEqual(lsa2 Lsa) bool {
	return lsa == lsa2 || lsa.Less(lsa2)
}

func (lsa Lsa) String() string {
	if lsa.IsNull() {
		return "null"
	}
	return fmt.Sprintf("%d|%d", lsa.PageID, lsa.Offset)
}
