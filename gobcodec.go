package nphdaq

import (
	"encoding/gob"
	"io"
)

// GobCodec is a minimal RecordCodec using encoding/gob, the default
// wire format for deployments that don't need interoperability with the
// original C record layout. Any concrete on-disk format the spec's
// hardware partner defines belongs in its own RecordCodec implementation
// outside this package.
type GobCodec struct{}

func (GobCodec) WriteEvent(w io.Writer, ev Event) error {
	return gob.NewEncoder(w).Encode(ev)
}

func (GobCodec) WriteHeader(w io.Writer, h Header) error {
	return gob.NewEncoder(w).Encode(h)
}

func (GobCodec) WriteStatus(w io.Writer, st StatusSnapshot) error {
	return gob.NewEncoder(w).Encode(st)
}
