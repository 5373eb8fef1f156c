package delta

import (
	"io"
	"os"

	"github.com/itchio/kompress/bzip2"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// BzipExtentWriter decompresses a bzip2 stream on the fly and hands
// the plaintext to an inner writer. Compressed input may arrive in any
// number of Write calls; End fails if the stream is truncated.
//
// The decoder is pull-based, so the writer bridges it with a pipe: the
// caller's Writes feed one end, a goroutine drains the decompressed
// side into the inner writer.
type BzipExtentWriter struct {
	inner ExtentWriter

	pw    *io.PipeWriter
	group errgroup.Group
}

var _ ExtentWriter = (*BzipExtentWriter)(nil)

func NewBzipExtentWriter(inner ExtentWriter) *BzipExtentWriter {
	return &BzipExtentWriter{inner: inner}
}

func (bw *BzipExtentWriter) Init(f *os.File, extents []*Extent, blockSize uint64) error {
	err := bw.inner.Init(f, extents, blockSize)
	if err != nil {
		return err
	}

	pr, pw := io.Pipe()
	bw.pw = pw

	bw.group.Go(func() error {
		bzReader := bzip2.NewReader(pr)
		buf := make([]byte, 32*1024)
		for {
			n, readErr := bzReader.Read(buf)
			if n > 0 {
				writeErr := bw.inner.Write(buf[:n])
				if writeErr != nil {
					// Unstick the producer side.
					pr.CloseWithError(writeErr)
					return writeErr
				}
			}
			if readErr != nil {
				if readErr == io.EOF {
					return nil
				}
				pr.CloseWithError(readErr)
				return errors.WithStack(readErr)
			}
		}
	})
	return nil
}

func (bw *BzipExtentWriter) Write(data []byte) error {
	_, err := bw.pw.Write(data)
	return errors.WithStack(err)
}

func (bw *BzipExtentWriter) End() error {
	err := bw.pw.Close()
	if err != nil {
		return errors.WithStack(err)
	}

	err = bw.group.Wait()
	if err != nil {
		return err
	}

	return bw.inner.End()
}
