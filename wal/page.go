package wal

import (
	"fmt"
	"hash/crc32"
)

const (
	// PageSize is the size of a log page, header included.
	PageSize = 16384

	// pageHeaderSize is the on-disk size of the page header: page id (8),
	// offset of the first record (4), padding (2), checksum (4).
	pageHeaderSize = 8 + 4 + 2 + 4

	// AreaSize is the number of record stream bytes on each page.
	AreaSize = PageSize - pageHeaderSize

	// NullFirstRecord marks a page on which no record starts; the whole
	// page is the continuation of a record begun earlier.
	NullFirstRecord int32 = -1
)

// PageHeader is the fixed header at the start of every log page. FirstRecord
// is the area offset of the first record starting on the page; it is a
// salvage aid for skipping past a corrupt predecessor page.
type PageHeader struct {
	PageID      int64
	FirstRecord int32
	Checksum    uint32
}

func EncodePageHeader(buf []byte, hdr PageHeader) {
	if len(buf) < pageHeaderSize {
		panic(fmt.Sprintf("wal: page header buffer too short: %d", len(buf)))
	}
	c := coder{buf: buf}
	c.putInt64(hdr.PageID)
	c.putInt32(hdr.FirstRecord)
	c.putUint16(0)
	c.putUint32(hdr.Checksum)
}

func DecodePageHeader(buf []byte) (PageHeader, error) {
	if len(buf) < pageHeaderSize {
		return PageHeader{}, fmt.Errorf("wal: short page header: %d bytes", len(buf))
	}
	c := coder{buf: buf}
	hdr := PageHeader{
		PageID:      c.int64(),
		FirstRecord: c.int32(),
	}
	c.skip(2)
	hdr.Checksum = c.uint32()
	return hdr, nil
}

// PageChecksum computes the CRC32 of a full page with the checksum field
// treated as zero.
func PageChecksum(page []byte) uint32 {
	crc := crc32.NewIEEE()
	crc.Write(page[:pageHeaderSize-4])
	crc.Write([]byte{0, 0, 0, 0})
	crc.Write(page[pageHeaderSize:])
	return crc.Sum32()
}

// BuildPage assembles a full log page from its logical page id, the area
// offset of the first record starting on it, and its record area. The area
// may be shorter than AreaSize; the remainder is zero filled.
func BuildPage(pageID int64, firstRecord int32, area []byte) []byte {
	if len(area) > AreaSize {
		panic(fmt.Sprintf("wal: page %d: area too large: %d", pageID, len(area)))
	}
	page := make([]byte, PageSize)
	copy(page[pageHeaderSize:], area)
	EncodePageHeader(page, PageHeader{PageID: pageID, FirstRecord: firstRecord})
	EncodePageHeader(page, PageHeader{
		PageID:      pageID,
		FirstRecord: firstRecord,
		Checksum:    PageChecksum(page),
	})
	return page
}

// VerifyPage checks the checksum and the logical page id of a full page.
func VerifyPage(page []byte, pageID int64) error {
	if len(page) != PageSize {
		return fmt.Errorf("wal: page %d: wrong size: %d", pageID, len(page))
	}
	hdr, err := DecodePageHeader(page)
	if err != nil {
		return err
	}
	if hdr.PageID != pageID {
		return fmt.Errorf("wal: page %d: header has page id %d", pageID, hdr.PageID)
	}
	if sum := PageChecksum(page); sum != hdr.Checksum {
		return fmt.Errorf("wal: page %d: checksum mismatch: %08x != %08x", pageID, sum,
			hdr.Checksum)
	}
	return nil
}
