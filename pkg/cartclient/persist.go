package cartclient

import (
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// snapshotName is the fixed namespace for the persisted cart record. Only
// the cart products are persisted; the loading map is transient and never
// written.
const snapshotName = "storefront-cart.json"

// ErrNoSnapshot is returned by Store.Load when nothing has been persisted
// yet.
var ErrNoSnapshot = errors.New("no cart snapshot")

// Store persists the cached cart across restarts. It is a convenience
// cache, not a source of truth: the server document wins on the next fetch.
type Store interface {
	Load() ([]CartProduct, error)
	Save(items []CartProduct) error
}

// FileStore keeps the snapshot as a single JSON file in the given
// directory.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore rooted at dir. The directory is created
// on the first Save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, snapshotName)}
}

// Load reads the persisted cart, or ErrNoSnapshot when the file does not
// exist.
func (s *FileStore) Load() ([]CartProduct, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSnapshot
		}
		return nil, errors.Wrap(err, "read snapshot")
	}

	var items []CartProduct
	d := jx.DecodeBytes(data)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		if key != "cartProducts" {
			return d.Skip()
		}
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		items, err = decodeCartProducts(raw)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode snapshot")
	}
	if items == nil {
		items = []CartProduct{}
	}
	return items, nil
}

// Save writes the cart atomically: a temp file in the same directory is
// renamed over the snapshot so a crash mid-write never leaves a torn file.
func (s *FileStore) Save(items []CartProduct) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "create snapshot dir")
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.FieldStart("cartProducts")
		encodeCartProducts(e, items)
	})

	tmp, err := os.CreateTemp(filepath.Dir(s.path), snapshotName+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(e.Bytes()); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write snapshot")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close snapshot")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrap(err, "replace snapshot")
	}
	return nil
}
