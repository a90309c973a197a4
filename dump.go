package unqkv

import (
	"errors"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

type record struct {
	Key   []byte `msgpack:"k"`
	Value []byte `msgpack:"v"`
}

// Export writes every record to w as a stream of msgpack objects, in
// traversal order.
func (h *Handle) Export(w io.Writer) bool {
	if !h.checkOpen("export") {
		return false
	}

	cur := h.Cursor()
	defer cur.Close()
	if cur.LastResultCode() != Ok {
		return h.setResult("export", cur.LastResultCode())
	}

	enc := msgpack.NewEncoder(w)

	var encErr error
	ok := cur.ForEach(func(key, value []byte) error {
		encErr = enc.Encode(&record{Key: key, Value: value})
		return encErr
	})
	if encErr != nil {
		return h.setCode("export", encErr)
	}
	if !ok {
		return h.setResult("export", cur.LastResultCode())
	}
	return h.setCode("export", nil)
}

// Import stores every record read from r, as produced by Export. Records are
// written inside the current transaction, which is committed on success and
// rolled back on failure.
func (h *Handle) Import(r io.Reader) bool {
	if !h.Begin() {
		return false
	}

	dec := msgpack.NewDecoder(r)
	for {
		var rec record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err == nil {
			err = h.engine.Store(rec.Key, rec.Value)
		}
		if err != nil {
			return h.setCode("import", errors.Join(err, h.engine.Rollback()))
		}
	}
	return h.Commit()
}
