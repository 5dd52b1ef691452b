package pagestore

import (
	"context"
	"fmt"
	"io"

	"github.com/GunterMueller/cubrid/recovery"
)

// RegisterAppliers registers the page image apply functions of a page
// serving store. The payload conventions match what the log producing side
// writes for these recovery indexes: a full page for IndexPageImage and
// IndexPageInit, bytes to place at the record's offset for IndexPageWrite.
func RegisterAppliers(b *recovery.Builder, st *Store, pageSize int) {
	b.Register(recovery.IndexPageImage,
		func(ctx context.Context, rcv *recovery.Rcv) error {
			return st.WriteDataPage(rcv.VolID, rcv.PageID, rcv.Data)
		})

	b.Register(recovery.IndexPageInit,
		func(ctx context.Context, rcv *recovery.Rcv) error {
			page := make([]byte, pageSize)
			copy(page, rcv.Data)
			return st.WriteDataPage(rcv.VolID, rcv.PageID, page)
		})

	b.Register(recovery.IndexPageWrite,
		func(ctx context.Context, rcv *recovery.Rcv) error {
			page, err := st.ReadDataPage(rcv.VolID, rcv.PageID)
			if err == io.EOF {
				page = make([]byte, pageSize)
			} else if err != nil {
				return err
			}

			off := int(rcv.Offset)
			if off < 0 || off+len(rcv.Data) > len(page) {
				return fmt.Errorf("pagestore: write at %d|%d+%d past page of %d bytes",
					rcv.PageID, off, len(rcv.Data), len(page))
			}
			copy(page[off:], rcv.Data)
			return st.WriteDataPage(rcv.VolID, rcv.PageID, page)
		})
}
