package wal

import (
	"fmt"
)

// FetchMode selects how the reader fetches the page a position refers to.
// FetchForce must be used when the page may have grown since it was last
// read; a cached copy taken before new records were appended would make the
// reader miss them.
type FetchMode int

const (
	FetchCached FetchMode = iota
	FetchForce
)

// PageFetcher retrieves full log pages by logical page id. Implementations
// are responsible for checksum verification; the reader trusts the pages it
// is handed.
type PageFetcher interface {
	FetchPage(pageID int64) ([]byte, error)
}

// streamAlign is the alignment of every structure in the record stream.
const streamAlign = 8

// Reader is a cursor over the log record stream. The stream is a sequence
// of 8-byte aligned structures logically spanning fixed-size physical
// pages; the reader stitches structures that straddle a page boundary back
// together and keeps at most one page buffered.
type Reader struct {
	fetcher PageFetcher
	pageID  int64
	area    []byte
	offset  int
	page    [PageSize]byte
	buf     []byte
}

func NewReader(fetcher PageFetcher) *Reader {
	return &Reader{
		fetcher: fetcher,
		pageID:  NullPageID,
	}
}

func (r *Reader) fetch(pageID int64) error {
	page, err := r.fetcher.FetchPage(pageID)
	if err != nil {
		return err
	}
	if len(page) != PageSize {
		return fmt.Errorf("wal: page %d: fetched %d bytes", pageID, len(page))
	}
	hdr, err := DecodePageHeader(page)
	if err != nil {
		return err
	}
	if hdr.PageID != pageID {
		return fmt.Errorf("wal: page %d: fetched page %d", pageID, hdr.PageID)
	}

	// The fetcher may reuse its buffer; keep a private copy.
	copy(r.page[:], page)
	r.pageID = pageID
	r.area = r.page[pageHeaderSize:]
	return nil
}

// SetPosition positions the cursor at lsa, fetching the page it refers to.
// With FetchCached a buffered copy of the same page is reused.
func (r *Reader) SetPosition(lsa Lsa, mode FetchMode) error {
	if lsa.IsNull() {
		return fmt.Errorf("wal: set position to null lsa")
	}
	if int(lsa.Offset) >= AreaSize {
		return fmt.Errorf("wal: set position %s: offset beyond page area", lsa)
	}
	if mode == FetchForce || r.pageID != lsa.PageID || r.area == nil {
		if err := r.fetch(lsa.PageID); err != nil {
			return err
		}
	}
	r.offset = int(lsa.Offset)
	return nil
}

// Position returns the cursor position. It is only meaningful while the
// cursor is within the current page area.
func (r *Reader) Position() Lsa {
	return Lsa{PageID: r.pageID, Offset: uint16(r.offset)}
}

// Align rounds the cursor up to the next stream alignment boundary,
// advancing to the next page when the aligned offset falls past the area.
// The next page is not fetched here: a log may validly end with a record
// whose trailing alignment crosses into a page that was never written, so
// the fetch is deferred until something is actually read there.
func (r *Reader) Align() {
	r.offset = (r.offset + streamAlign - 1) &^ (streamAlign - 1)
	for r.offset >= AreaSize {
		r.pageID += 1
		r.offset -= AreaSize
		r.area = nil
	}
}

// AdvanceWhenDoesNotFit moves the cursor to the start of the next page if
// fewer than n contiguous bytes remain in the current page area. The writer
// applies the same rule, so a structure of size n read after this call is
// known to begin on the buffered page.
func (r *Reader) AdvanceWhenDoesNotFit(n int) error {
	if n > AreaSize {
		return fmt.Errorf("wal: structure of %d bytes exceeds page area", n)
	}
	if r.offset+n > AreaSize {
		if err := r.fetch(r.pageID + 1); err != nil {
			return err
		}
		r.offset = 0
	}
	return nil
}

// CopyAligned copies the next n bytes of the record stream, stitching
// across page boundaries, and then aligns the cursor. The returned slice is
// valid until the next call on the reader.
func (r *Reader) CopyAligned(n int) ([]byte, error) {
	if cap(r.buf) < n {
		r.buf = make([]byte, 0, n)
	}
	b := r.buf[:0]
	for n > 0 {
		if r.offset >= AreaSize {
			if err := r.fetch(r.pageID + 1); err != nil {
				return nil, err
			}
			r.offset = 0
		} else if r.area == nil {
			if err := r.fetch(r.pageID); err != nil {
				return nil, err
			}
		}
		m := AreaSize - r.offset
		if m > n {
			m = n
		}
		b = append(b, r.area[r.offset:r.offset+m]...)
		r.offset += m
		n -= m
	}
	r.buf = b
	r.Align()
	return b, nil
}

// SkipAligned advances the cursor past the next n bytes of the record
// stream without copying them, and then aligns the cursor.
func (r *Reader) SkipAligned(n int) error {
	for n > 0 {
		if r.offset >= AreaSize {
			if err := r.fetch(r.pageID + 1); err != nil {
				return err
			}
			r.offset = 0
		}
		m := AreaSize - r.offset
		if m > n {
			m = n
		}
		r.offset += m
		n -= m
	}
	r.Align()
	return nil
}
