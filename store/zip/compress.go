package zip

import (
	"compress/gzip"
	"io"

	"github.com/nlowe/bkarchive/util"
)

const compressLevel = gzip.DefaultCompression

// flushSize is the number of uncompressed bytes read before flushing the
// gzip buffer. Larger values compress better but flush less often.
const flushSize = 65535

// CompressReader gzip-compresses in at the default ratio, flushing to the
// returned reader at roughly flushSize intervals so large attachment bodies
// don't have to be buffered in full before any bytes are available.
func CompressReader(in io.Reader) (out io.Reader, err error) {
	r, w := io.Pipe()
	gz, err := gzip.NewWriterLevel(w, compressLevel)
	if err != nil {
		return nil, err
	}

	go func() {
		for {
			if _, cerr := io.CopyN(gz, in, flushSize); cerr != nil {
				if cerr == io.EOF {
					break
				}
				w.CloseWithError(cerr)
				return
			}
			gz.Flush()
		}
		if cerr := gz.Close(); cerr != nil {
			w.CloseWithError(cerr)
			return
		}
		w.Close()
	}()

	return r, nil
}

// DecompressReader reads a gzip stream produced by CompressReader.
func DecompressReader(in io.Reader) (out io.Reader, err error) {
	rc, err := gzip.NewReader(in)
	if err != nil {
		return nil, err
	}
	return &util.AutoCloseReader{RC: rc}, nil
}
