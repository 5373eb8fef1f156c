package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/ottergrid/pave/comm"
	"github.com/ottergrid/pave/terminator"
)

var (
	version = "head" // set by command-line on CI release builds
	app     = kingpin.New("pave", "Applies signed delta update payloads to partition images")

	applyCmd  = app.Command("apply", "Stream a delta payload onto a rootfs + kernel partition pair")
	statusCmd = app.Command("status", "Show the stored update progress state")
	resetCmd  = app.Command("reset", "Mark the stored update progress non-resumable")
)

var appArgs = struct {
	json       *bool
	quiet      *bool
	verbose    *bool
	timestamps *bool
	noProgress *bool
}{
	app.Flag("json", "Enable machine-readable JSON-lines output").Short('j').Bool(),
	app.Flag("quiet", "Hide progress indicators & other extra info").Short('q').Bool(),
	app.Flag("verbose", "Display as much extra info as possible").Short('v').Bool(),
	app.Flag("timestamps", "Prefix all output by timestamps (for logging purposes)").Bool(),
	app.Flag("no-progress", "Doesn't show progress indicators").Bool(),
}

var applyArgs = struct {
	payload *string
	rootfs  *string
	kernel  *string
	store   *string
	key     *string
	hash    *string
	size    *uint64
	bspatch *string
}{
	applyCmd.Arg("payload", "Delta payload file ('-' reads from stdin)").Required().String(),
	applyCmd.Arg("rootfs", "Root filesystem partition to update").Required().String(),
	applyCmd.Arg("kernel", "Kernel partition to update").Required().String(),
	applyCmd.Flag("store", "Progress store database").Default("/var/lib/pave/prefs.db").String(),
	applyCmd.Flag("key", "PEM public key used to verify the payload signature").String(),
	applyCmd.Flag("hash", "Expected payload SHA-256, base64").Required().String(),
	applyCmd.Flag("size", "Expected payload size in bytes").Required().Uint64(),
	applyCmd.Flag("bspatch", "Binary-patch executable for BSDIFF operations").Default("bspatch").String(),
}

var statusArgs = struct {
	store *string
}{
	statusCmd.Flag("store", "Progress store database").Default("/var/lib/pave/prefs.db").String(),
}

var resetArgs = struct {
	store *string
}{
	resetCmd.Flag("store", "Progress store database").Default("/var/lib/pave/prefs.db").String(),
}

// term is consulted by the signal handler: termination requests are
// deferred while an update operation is in its critical section.
var term = terminator.New()

func must(err error) {
	if err != nil {
		comm.Dief("%+v", err)
	}
}

func handleSignals() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-signals
		if term.ExitBlocked() {
			comm.Warnf("%s received, exit deferred until the current operation is checkpointed", sig)
			for term.ExitBlocked() {
				time.Sleep(100 * time.Millisecond)
			}
		}
		comm.Dief("interrupted by %s", sig)
	}()
}

func main() {
	app.HelpFlag.Short('h')
	app.Version(version)
	app.VersionFlag.Short('V')

	cmd, err := app.Parse(os.Args[1:])
	if *appArgs.timestamps {
		log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	} else {
		log.SetFlags(0)
	}

	if *appArgs.quiet {
		*appArgs.noProgress = true
	}

	comm.Configure(*appArgs.noProgress, *appArgs.quiet, *appArgs.verbose, *appArgs.json)
	handleSignals()

	switch kingpin.MustParse(cmd, err) {
	case applyCmd.FullCommand():
		apply(*applyArgs.payload, *applyArgs.rootfs, *applyArgs.kernel,
			*applyArgs.store, *applyArgs.key, *applyArgs.hash, *applyArgs.size,
			*applyArgs.bspatch)

	case statusCmd.FullCommand():
		status(*statusArgs.store)

	case resetCmd.FullCommand():
		reset(*resetArgs.store)
	}
}
