package main

import (
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/ottergrid/pave/comm"
	"github.com/ottergrid/pave/delta"
	"github.com/ottergrid/pave/prefs"
)

func apply(payload string, rootfs string, kernel string, storePath string, keyPath string, hash string, size uint64, bspatchPath string) {
	must(doApply(payload, rootfs, kernel, storePath, keyPath, hash, size, bspatchPath))
}

func doApply(payload string, rootfs string, kernel string, storePath string, keyPath string, hash string, size uint64, bspatchPath string) error {
	store, err := prefs.OpenBoltStore(storePath)
	if err != nil {
		return err
	}
	defer store.Close()

	performer := delta.NewPerformer(store, term, comm.NewStateConsumer())
	performer.BspatchPath = bspatchPath

	var payloadFile *os.File
	if payload == "-" {
		payloadFile = os.Stdin
	} else {
		payloadFile, err = os.Open(payload)
		if err != nil {
			return errors.WithStack(err)
		}
		defer payloadFile.Close()
	}

	// A stored resume point is only usable against a seekable payload
	// for the same expected hash.
	resuming := false
	if payload != "-" && delta.CanResumeUpdate(store, hash) {
		err = performer.ResumeUpdate()
		if err == nil {
			resuming = true
		} else {
			comm.Warnf("stored update state unusable, restarting: %v", err)
		}
	}
	if !resuming {
		err = delta.ResetUpdateProgress(store)
		if err != nil {
			return err
		}
		err = store.SetString(prefs.UpdateCheckResponseHash, hash)
		if err != nil {
			return err
		}
	}

	err = performer.Open(rootfs, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	err = performer.OpenKernel(kernel, os.O_RDWR, 0)
	if err != nil {
		return err
	}

	comm.Opf("Applying %s to %s + %s", payload, rootfs, kernel)
	startTime := time.Now()
	comm.StartProgress()

	if resuming {
		// Re-feed the metadata so the manifest gets parsed again, then
		// jump to where the last checkpoint left off.
		metadata := make([]byte, performer.ManifestMetadataSize())
		_, err = io.ReadFull(payloadFile, metadata)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = performer.Write(metadata)
		if err != nil {
			return err
		}
		_, err = payloadFile.Seek(int64(performer.BufferOffset()), io.SeekCurrent)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	buf := make([]byte, 512*1024)
	var written uint64
	for {
		n, readErr := payloadFile.Read(buf)
		if n > 0 {
			_, writeErr := performer.Write(buf[:n])
			if writeErr != nil {
				return writeErr
			}
			written += uint64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return errors.WithStack(readErr)
		}
	}

	err = performer.Close()
	if err != nil {
		return err
	}
	comm.EndProgress()

	err = performer.VerifyPayload(keyPath, hash, size)
	if err != nil {
		return err
	}

	perSecond := humanize.IBytes(uint64(float64(written) / time.Since(startTime).Seconds()))
	comm.Statf("%s @ %s/s, verified", humanize.IBytes(written), perSecond)
	return nil
}
