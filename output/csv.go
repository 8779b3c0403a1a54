package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	"github.com/nlowe/bkarchive/consumer"
	"github.com/nlowe/bkarchive/file"
	"github.com/nlowe/bkarchive/frame"
	"github.com/nlowe/bkarchive/store"
)

// CSV writes one CSV file per frame variant under OutputPath, rather than
// replaying Statement frames against a real database. Attachment/avatar/
// sticker bodies are still routed through the BlobStore; the CSV row records
// the store key rather than embedding the body.
type CSV struct {
	root  string
	blobs *store.BlobStore

	writers map[string]*csv.Writer
	files   map[string]*os.File
}

var _ consumer.FrameConsumer = (*CSV)(nil)

// NewCSV returns a CSV backend rooted at outputPath. The directory is created
// if it does not already exist.
func NewCSV(outputPath string, blobs *store.BlobStore) (*CSV, error) {
	if err := file.MakeDir(outputPath); err != nil {
		return nil, errors.Wrap(err, "output: create csv output directory")
	}
	return &CSV{
		root:    outputPath,
		blobs:   blobs,
		writers: make(map[string]*csv.Writer),
		files:   make(map[string]*os.File),
	}, nil
}

func (c *CSV) writer(name string, header []string) (*csv.Writer, error) {
	if w, ok := c.writers[name]; ok {
		return w, nil
	}

	f, err := os.Create(filepath.Join(c.root, name+".csv"))
	if err != nil {
		return nil, errors.Wrapf(err, "output: create %s.csv", name)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "output: write %s.csv header", name)
	}

	c.files[name] = f
	c.writers[name] = w
	return w, nil
}

func (c *CSV) write(name string, header, row []string) error {
	w, err := c.writer(name, header)
	if err != nil {
		return err
	}
	if err := w.Write(row); err != nil {
		return errors.Wrapf(err, "output: write %s.csv row", name)
	}
	return nil
}

func paramString(v frame.TypedValue) string {
	switch v.Kind {
	case frame.ValueInt64:
		return strconv.FormatInt(v.Int64, 10)
	case frame.ValueFloat64:
		return strconv.FormatFloat(v.Float64, 'g', -1, 64)
	case frame.ValueString:
		return v.String
	case frame.ValueBytes:
		return fmt.Sprintf("<%d bytes>", len(v.Bytes))
	default:
		return ""
	}
}

func (c *CSV) OnStatement(s *frame.Statement) error {
	params := make([]string, len(s.Params))
	for i, p := range s.Params {
		params[i] = paramString(p)
	}
	return c.write("statements", []string{"sql", "params"}, []string{s.SQL, fmt.Sprintf("%v", params)})
}

func (c *CSV) OnPreference(p *frame.Preference) error {
	v := p.Value
	return c.write(
		"preferences",
		[]string{"file", "key", "kind", "string", "bool", "int64", "float32", "blob_len", "string_set"},
		[]string{
			p.File, p.Key, kindName(v.Kind),
			v.String, strconv.FormatBool(v.Bool), strconv.FormatInt(v.Int64, 10),
			strconv.FormatFloat(float64(v.Float32), 'g', -1, 32),
			strconv.Itoa(len(v.Blob)), fmt.Sprintf("%v", v.StringSet),
		},
	)
}

func (c *CSV) OnKeyValue(kv *frame.KeyValue) error {
	return c.write(
		"key_value",
		[]string{"key", "blob_len", "bool", "float", "int32", "int64", "string"},
		[]string{
			kv.Key, strconv.Itoa(len(kv.Blob)), strconv.FormatBool(kv.Bool),
			strconv.FormatFloat(float64(kv.Float), 'g', -1, 32),
			strconv.FormatInt(int64(kv.Int32), 10), strconv.FormatInt(kv.Int64, 10), kv.String,
		},
	)
}

func (c *CSV) OnVersion(v *frame.Version) error {
	return c.write("version", []string{"version"}, []string{strconv.FormatUint(uint64(v.Version), 10)})
}

func (c *CSV) OnAttachment(a *frame.Attachment) error {
	key, err := c.blobs.Put("attachment", fmt.Sprintf("%d-%d", a.Row, a.ID), a.Body)
	if err != nil {
		return errors.Wrap(err, "output: store attachment blob")
	}
	return c.write(
		"attachments",
		[]string{"id", "row", "length", "store_key"},
		[]string{strconv.FormatUint(a.ID, 10), strconv.FormatUint(a.Row, 10), strconv.FormatUint(uint64(a.Length), 10), key},
	)
}

func (c *CSV) OnAvatar(a *frame.Avatar) error {
	key, err := c.blobs.Put("avatar", a.Name, a.Body)
	if err != nil {
		return errors.Wrap(err, "output: store avatar blob")
	}
	return c.write(
		"avatars",
		[]string{"name", "length", "store_key"},
		[]string{a.Name, strconv.FormatUint(uint64(a.Length), 10), key},
	)
}

func (c *CSV) OnSticker(s *frame.Sticker) error {
	key, err := c.blobs.Put("sticker", strconv.FormatUint(s.Row, 10), s.Body)
	if err != nil {
		return errors.Wrap(err, "output: store sticker blob")
	}
	return c.write(
		"stickers",
		[]string{"row", "length", "store_key"},
		[]string{strconv.FormatUint(s.Row, 10), strconv.FormatUint(uint64(s.Length), 10), key},
	)
}

// OnEnd flushes and closes every CSV file this backend opened.
func (c *CSV) OnEnd() error {
	return c.Close()
}

// Close flushes and closes every CSV file this backend opened. Safe to call
// even if no frame was ever written.
func (c *CSV) Close() error {
	for name, w := range c.writers {
		w.Flush()
		if err := w.Error(); err != nil {
			return errors.Wrapf(err, "output: flush %s.csv", name)
		}
	}
	for name, f := range c.files {
		if err := f.Close(); err != nil {
			return errors.Wrapf(err, "output: close %s.csv", name)
		}
	}
	return nil
}
