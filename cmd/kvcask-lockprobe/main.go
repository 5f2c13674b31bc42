// Command kvcask-lockprobe attempts to open a store from a second process
// and reports the outcome as JSON. It exists for testing process exclusivity:
// run it against a store another process holds open and it should report the
// lock as busy.
//
//	$ kvcask-lockprobe -name test -dir /var/data
//	{"status":"busy","message":"store file is locked by another process: ..."}
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/kvcask/kvcask/errdef"
	"github.com/kvcask/kvcask/store"
)

type result struct {
	Status  string `json:"status"` // "acquired" or "busy"
	Message string `json:"message,omitempty"`
}

func main() {
	name := flag.String("name", "kvcask.db", "store file name")
	dir := flag.String("dir", "", "store directory")
	flag.Parse()

	var opts []store.Option
	if *dir != "" {
		opts = append(opts, store.WithDirectory(*dir))
	}

	s, err := store.Open(*name, opts...)
	switch {
	case err == nil:
		s.Close()
		report(result{Status: "acquired"})
	case errors.Is(err, errdef.ErrLockBusy):
		report(result{Status: "busy", Message: err.Error()})
	default:
		fmt.Fprintln(os.Stderr, "open error:", err)
		os.Exit(1)
	}
}

func report(r result) {
	out, _ := json.Marshal(r)
	fmt.Println(string(out))
}
