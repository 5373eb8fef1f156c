package main

import (
	"github.com/ottergrid/pave/comm"
	"github.com/ottergrid/pave/delta"
	"github.com/ottergrid/pave/prefs"
)

func reset(storePath string) {
	must(doReset(storePath))
}

func doReset(storePath string) error {
	store, err := prefs.OpenBoltStore(storePath)
	if err != nil {
		return err
	}
	defer store.Close()

	err = delta.ResetUpdateProgress(store)
	if err != nil {
		return err
	}

	comm.Statf("update progress marked non-resumable")
	return nil
}
