package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/GunterMueller/cubrid/pagestore"
	"github.com/GunterMueller/cubrid/wal"
)

var (
	headerCmd = &cobra.Command{
		Use:   "header",
		Short: "Dump the log header of a page store or an archive file",
		RunE:  headerRun,
	}

	archiveFile = ""
)

func init() {
	fs := headerCmd.Flags()

	fs.StringVar(&store, "store", store, "page store backend: memory, bbolt, badger, or pebble")
	fs.StringVar(&dataDir, "data", dataDir, "`directory` containing the page store")
	fs.StringVar(&archiveFile, "archive", archiveFile, "archive `file` to dump instead")

	cubridCmd.AddCommand(headerCmd)
}

func headerRun(cmd *cobra.Command, args []string) error {
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetHeader([]string{"Field", "Value"})

	if archiveFile != "" {
		af, err := wal.OpenArchive(archiveFile)
		if err != nil {
			return fmt.Errorf("cubrid: %s", err)
		}
		defer af.Close()

		hdr := af.Header()
		tw.Append([]string{"magic", hdr.Magic})
		tw.Append([]string{"db creation", time.Unix(hdr.DbCreation, 0).String()})
		tw.Append([]string{"next tran id", fmt.Sprintf("%d", hdr.NextTranID)})
		tw.Append([]string{"pages", fmt.Sprintf("%d", hdr.NumPages)})
		tw.Append([]string{"first page id", fmt.Sprintf("%d", hdr.FirstPageID)})
		tw.Append([]string{"archive number", fmt.Sprintf("%d", hdr.ArchiveNum)})
		tw.Render()
		return nil
	}

	st, err := pagestore.Open(store, dataDir, nil)
	if err != nil {
		return fmt.Errorf("cubrid: %s", err)
	}
	defer st.Close()

	hdr, err := st.LoadHeader()
	if err != nil {
		return fmt.Errorf("cubrid: %s", err)
	}

	tw.Append([]string{"magic", hdr.Magic})
	tw.Append([]string{"db creation", time.Unix(hdr.DbCreation, 0).String()})
	tw.Append([]string{"db release", hdr.DbRelease})
	tw.Append([]string{"db page size", fmt.Sprintf("%d", hdr.DbPageSize)})
	tw.Append([]string{"log page size", fmt.Sprintf("%d", hdr.LogPageSize)})
	tw.Append([]string{"shutdown", fmt.Sprintf("%t", hdr.IsShutdown)})
	tw.Append([]string{"next tran id", fmt.Sprintf("%d", hdr.NextTranID)})
	tw.Append([]string{"mvcc next id", fmt.Sprintf("%d", hdr.MvccNextID)})
	tw.Append([]string{"pages", fmt.Sprintf("%d", hdr.NumPages)})
	tw.Append([]string{"first page id", fmt.Sprintf("%d", hdr.FirstPageID)})
	tw.Append([]string{"append lsa", hdr.AppendLsa.String()})
	tw.Append([]string{"checkpoint lsa", hdr.ChkptLsa.String()})
	tw.Append([]string{"eof lsa", hdr.EofLsa.String()})
	tw.Append([]string{"next archive page id", fmt.Sprintf("%d", hdr.NextArchivePageID)})
	tw.Append([]string{"next archive number", fmt.Sprintf("%d", hdr.NextArchiveNum)})
	tw.Append([]string{"last deleted archive", fmt.Sprintf("%d", hdr.LastDeletedArchiveNum)})
	for lvl := 0; lvl < wal.BackupLevels; lvl += 1 {
		tw.Append([]string{fmt.Sprintf("backup level %d lsa", lvl),
			hdr.BackupLsa[lvl].String()})
	}
	tw.Append([]string{"prefix", hdr.PrefixName})
	tw.Append([]string{"vacuum last block id", fmt.Sprintf("%d", hdr.VacuumLastBlockID)})
	tw.Append([]string{"last block oldest mvccid",
		fmt.Sprintf("%d", hdr.LastBlockOldestMvccID)})
	tw.Append([]string{"last block newest mvccid",
		fmt.Sprintf("%d", hdr.LastBlockNewestMvccID)})
	tw.Append([]string{"ha server state", fmt.Sprintf("%d", hdr.HaServerState)})
	tw.Append([]string{"stream ack position", fmt.Sprintf("%d", hdr.StreamAckPosition)})
	tw.Render()
	return nil
}
