package nphdaq

import "io"

// RecordCodec stands in for the original's serialize_event/
// serialize_header/serialize_status + nuphase_*_gzwrite functions: this
// package decides *when* to rotate and compress a file, but the wire
// format of an individual record belongs to an external collaborator.
type RecordCodec interface {
	WriteEvent(w io.Writer, ev Event) error
	WriteHeader(w io.Writer, h Header) error
	WriteStatus(w io.Writer, st StatusSnapshot) error
}
