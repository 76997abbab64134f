package lazy

import (
	"github.com/vmihailenco/msgpack/v5"
)

// EncodeMsgpack writes the resolved value, or nil for a pending handle
func (r Ref[T]) EncodeMsgpack(enc *msgpack.Encoder) error {
	if r.cell == nil {
		return enc.EncodeNil()
	}
	v, loaded := r.cell.peek()
	if !loaded || v == nil {
		if err := enc.EncodeArrayLen(1); err != nil {
			return err
		}
		return enc.EncodeBool(loaded)
	}
	if err := enc.EncodeArrayLen(2); err != nil {
		return err
	}
	if err := enc.EncodeBool(true); err != nil {
		return err
	}
	return enc.Encode(v)
}

// DecodeMsgpack restores a resolved handle; handles that were pending when
// encoded come back detached
func (r *Ref[T]) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n == -1 {
		r.cell = nil
		return nil
	}

	loaded, err := dec.DecodeBool()
	if err != nil {
		return err
	}
	if !loaded {
		r.cell = detached()
		return nil
	}
	if n == 1 {
		var zero T
		r.cell = Resolved(zero)
		return nil
	}

	var v T
	if err := dec.Decode(&v); err != nil {
		return err
	}
	r.cell = Resolved(v)
	return nil
}
