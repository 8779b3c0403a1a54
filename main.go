package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"

	"github.com/nlowe/bkarchive/backup"
	"github.com/nlowe/bkarchive/consumer"
	"github.com/nlowe/bkarchive/file"
	vfs "github.com/nlowe/bkarchive/file/fs"
	"github.com/nlowe/bkarchive/frame"
	"github.com/nlowe/bkarchive/output"
	"github.com/nlowe/bkarchive/reader"
	"github.com/nlowe/bkarchive/store"
)

var version = "dev"
var buildTag = fmt.Sprintf("%s %s/%s", version, runtime.GOOS, runtime.GOARCH)

func exitIfError(err error) {
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}

// openOutput builds the FrameConsumer for cfg.OutputType, along with the
// BlobStore backing it (sandboxed under OutputPath/blobs via vfs.NewSubdirFS
// so the output backend never has to know its own output root).
func openOutput(cfg *Config) (consumer.FrameConsumer, func() error, error) {
	if cfg.OutputType == OutputNone {
		return output.Noop{}, func() error { return nil }, nil
	}

	blobsPath := filepath.Join(cfg.OutputPath, "blobs")
	if err := file.MakeDir(blobsPath); err != nil {
		return nil, nil, errors.Wrap(err, "main: create blob store directory")
	}
	blobFS, err := vfs.NewSubdirFS(blobsPath)
	if err != nil {
		return nil, nil, errors.Wrap(err, "main: sandbox blob store")
	}
	blobs, err := store.NewFileStoreFS(blobFS, ".")
	if err != nil {
		return nil, nil, errors.Wrap(err, "main: open blob store")
	}

	switch cfg.OutputType {
	case OutputRaw:
		out, err := output.NewSQLite(cfg.OutputPath, cfg.InMemoryDB, blobs)
		if err != nil {
			return nil, nil, errors.Wrap(err, "main: open sqlite output")
		}
		return out, out.Close, nil
	case OutputCSV:
		out, err := output.NewCSV(cfg.OutputPath, blobs)
		if err != nil {
			return nil, nil, errors.Wrap(err, "main: open csv output")
		}
		return out, out.Close, nil
	default:
		return nil, nil, errors.Errorf("main: unknown output type %q", cfg.OutputType)
	}
}

func run(cfg *Config) (err error) {
	report := backup.NewReport(cfg.InputPath)
	defer func() {
		if err != nil {
			report.Error = err.Error()
		}
		reportPath := filepath.Join(cfg.OutputPath, "report.json")
		if writeErr := report.WriteFile(reportPath); writeErr != nil {
			log.Printf("main: failed to write report: %v\n", writeErr)
		}
	}()

	if err := file.MakeDir(cfg.OutputPath); err != nil {
		return errors.Wrap(err, "main: create output path")
	}

	in, err := os.Open(cfg.InputPath)
	if err != nil {
		return errors.Wrap(err, "main: open input file")
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return errors.Wrap(err, "main: stat input file")
	}

	readerCfg := reader.DefaultConfig()
	readerCfg.VerifyMAC = cfg.VerifyMAC
	fr, err := reader.New(in, cfg.Password, fi.Size(), readerCfg)
	if err != nil {
		return errors.Wrap(err, "main: open frame reader")
	}

	out, closeOut, err := openOutput(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeOut(); closeErr != nil {
			log.Printf("main: failed to close output: %v\n", closeErr)
		}
	}()

	for {
		f, err := fr.Next()
		if errors.Cause(err) == io.EOF {
			break
		}
		if errors.Cause(err) == reader.ErrUnexpectedEnd {
			log.Println("main: stream ended before an End frame was seen")
			break
		}
		if err != nil {
			return errors.Wrap(err, "main: read frame")
		}

		report.Record(f.Kind)
		if err := consumer.Dispatch(out, f); err != nil {
			return errors.Wrapf(err, "main: handle %s frame", f.Kind)
		}
		if f.Kind == frame.KindEnd {
			break
		}
	}

	report.FrameCount = fr.FrameCount()
	report.ByteCount = fr.ByteCount()

	log.Printf("main: done. %d frames, %d bytes\n", report.FrameCount, report.ByteCount)
	return nil
}

func main() {
	cfg, err := ParseConfig(os.Args[1:])
	exitIfError(err)

	log.Printf("starting. build: %s\n", buildTag)
	exitIfError(run(cfg))

	fmt.Println("<exited normally>")
}
