package wal

import (
	"fmt"
	"os"
)

// ArchiveFile is a sealed, read-only portion of the log moved to its own
// file. Physical page 0 holds the archive header; pages 1..NumPages hold
// the logical pages [FirstPageID, FirstPageID+NumPages).
type ArchiveFile struct {
	f   *os.File
	hdr *ArchiveHeader
}

// OpenArchive opens an archive file and validates its header.
func OpenArchive(path string) (*ArchiveFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, ArchiveHeaderSize)
	_, err = f.ReadAt(buf, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("wal: archive %s: %s", path, err)
	}
	hdr, err := DecodeArchiveHeader(buf)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &ArchiveFile{
		f:   f,
		hdr: hdr,
	}, nil
}

func (af *ArchiveFile) Header() *ArchiveHeader {
	return af.hdr
}

// Contains reports whether the archive holds the logical page.
func (af *ArchiveFile) Contains(pageID int64) bool {
	return pageID >= af.hdr.FirstPageID && pageID < af.hdr.FirstPageID+int64(af.hdr.NumPages)
}

// FetchPage reads a logical page from the archive. The page checksum is
// verified before the page is returned.
func (af *ArchiveFile) FetchPage(pageID int64) ([]byte, error) {
	if !af.Contains(pageID) {
		return nil, fmt.Errorf("wal: archive %d: page %d not archived here",
			af.hdr.ArchiveNum, pageID)
	}

	page := make([]byte, PageSize)
	phys := pageID - af.hdr.FirstPageID + 1
	_, err := af.f.ReadAt(page, phys*PageSize)
	if err != nil {
		return nil, fmt.Errorf("wal: archive %d: page %d: %s", af.hdr.ArchiveNum, pageID, err)
	}
	err = VerifyPage(page, pageID)
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (af *ArchiveFile) Close() error {
	return af.f.Close()
}
