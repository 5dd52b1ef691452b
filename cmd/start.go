package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/GunterMueller/cubrid/pagestore"
	"github.com/GunterMueller/cubrid/recovery"
	"github.com/GunterMueller/cubrid/repl"
	"github.com/GunterMueller/cubrid/wal"
)

var (
	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the replication daemon",
		RunE:  startRun,
	}

	store   = "bbolt"
	dataDir = "testdata"
)

func init() {
	fs := startCmd.Flags()

	fs.StringVar(&store, "store", store, "page store backend: memory, bbolt, badger, or pebble")
	cfgVars["store"] = fs.Lookup("store")

	fs.StringVar(&dataDir, "data", dataDir, "`directory` containing the page store")
	cfgVars["data"] = fs.Lookup("data")

	cubridCmd.AddCommand(startCmd)
}

func startRun(cmd *cobra.Command, args []string) error {
	logger := log.StandardLogger()

	st, err := pagestore.Open(store, dataDir, logger)
	if err != nil {
		return fmt.Errorf("cubrid: %s", err)
	}
	defer st.Close()

	hdr, err := st.LoadHeader()
	if err != nil {
		return fmt.Errorf("cubrid: %s", err)
	}

	state := wal.NewState(hdr)
	b := recovery.NewBuilder()
	pagestore.RegisterAppliers(b, st, int(hdr.DbPageSize))

	start := hdr.ChkptLsa
	if start.IsNull() {
		start = wal.Lsa{PageID: hdr.FirstPageID, Offset: 0}
	}
	r := repl.New(state, st, b.Build(), start, logger)

	logger.WithFields(log.Fields{
		"store": store,
		"data":  dataDir,
		"lsa":   start.String(),
	}).Info("replication started")

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch

	err = r.Close()
	if err != nil {
		return fmt.Errorf("cubrid: %s", err)
	}
	return nil
}
