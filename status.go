package main

import (
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/ottergrid/pave/prefs"
)

func status(storePath string) {
	must(doStatus(storePath))
}

func doStatus(storePath string) error {
	store, err := prefs.OpenBoltStore(storePath)
	if err != nil {
		return err
	}
	defer store.Close()

	intKeys := []string{
		prefs.ManifestMetadataSize,
		prefs.UpdateStateNextOperation,
		prefs.UpdateStateNextDataOffset,
	}
	stringKeys := []string{
		prefs.UpdateCheckResponseHash,
		prefs.UpdateStateSHA256Context,
		prefs.UpdateStateSignedSHA256Context,
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Value"})

	for _, key := range intKeys {
		value, err := store.GetInt64(key)
		if err != nil {
			table.Append([]string{key, "(unset)"})
			continue
		}
		table.Append([]string{key, strconv.FormatInt(value, 10)})
	}
	for _, key := range stringKeys {
		value, err := store.GetString(key)
		if err != nil {
			table.Append([]string{key, "(unset)"})
			continue
		}
		if len(value) > 40 {
			value = value[:40] + "…"
		}
		table.Append([]string{key, value})
	}
	table.Render()
	return nil
}
