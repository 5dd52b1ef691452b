package testutil

import (
	"flag"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

var (
	logLevel  = "info"
	logStderr = false
)

func init() {
	flag.StringVar(&logLevel, "log-level", logLevel,
		"log level: trace, debug, info, warn, error, fatal, or panic")
	flag.BoolVar(&logStderr, "log-stderr", logStderr, "log to standard error")
}

// SetupLogger configures logging for a test, writing to file unless
// -log-stderr was given.
func SetupLogger(file string) *log.Logger {
	if !logStderr {
		w, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			panic(err)
		}
		log.SetOutput(w)
	}

	ll, err := log.ParseLevel(logLevel)
	if err != nil {
		panic(err)
	}
	log.SetLevel(ll)
	return log.StandardLogger()
}

// CleanDir removes everything in the directory named by dirname except for
// any directory entries specified by keeps.
func CleanDir(dirname string, keeps []string) error {
	d, err := os.Open(dirname)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	fis, err := d.Readdir(-1)
	d.Close()
	if err != nil {
		return err
	}

	m := map[string]struct{}{}
	for _, k := range keeps {
		m[k] = struct{}{}
	}

	for _, fi := range fis {
		n := fi.Name()
		if _, found := m[n]; found {
			continue
		}
		err = os.RemoveAll(filepath.Join(dirname, n))
		if err != nil {
			return err
		}
	}
	return nil
}
