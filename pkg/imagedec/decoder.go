package imagedec

import (
	"bytes"
	"io"
	"log/slog"

	"github.com/h2non/filetype"
)

// SignatureSize is the number of bytes sniffed from the head of a stream
const SignatureSize = 16

// Decoder turns the remainder of the stream it was constructed with into a LinearImage.
// Decode is called at most once; malformed input produces an empty image.
type Decoder interface {
	SetColorSpace(space ColorSpace)
	Decode() LinearImage
}

// Format registers a decoder with the dispatcher
type Format struct {
	Name string

	// Magics are compared byte for byte against the start of the sniffed head.
	// Any one matching selects the format.
	Magics [][]byte

	// New binds a decoder to a stream positioned at the start of the image
	New func(r io.Reader) Decoder

	// ForceColorSpace overrides the caller's source color space with ColorSpace
	ForceColorSpace bool
	ColorSpace      ColorSpace
}

// Matches reports whether the sniffed head carries one of the format's magics
func (f Format) Matches(head []byte) bool {
	if len(head) < SignatureSize {
		return false
	}
	for _, magic := range f.Magics {
		if len(magic) <= len(head) && bytes.Equal(head[:len(magic)], magic) {
			return true
		}
	}
	return false
}

// Dispatcher selects a decoder by signature. Formats are tried in registration order.
type Dispatcher struct {
	formats []Format
}

// NewDispatcher creates a dispatcher for the given formats, in priority order
func NewDispatcher(formats ...Format) *Dispatcher {
	return &Dispatcher{formats: append([]Format(nil), formats...)}
}

// DefaultDispatcher returns a dispatcher with every built-in format registered
func DefaultDispatcher() *Dispatcher {
	return NewDispatcher(RadianceFormat)
}

// Formats returns the registered formats in priority order
func (d *Dispatcher) Formats() []Format {
	return append([]Format(nil), d.formats...)
}

// Decode sniffs the stream and decodes it with the first matching format.
//
// When no format matches, the stream is left at its original position and an
// empty image is returned. After a successful match the stream position is
// wherever the decoder stopped reading.
func (d *Dispatcher) Decode(stream io.ReadSeeker, sourceName string, sourceSpace ColorSpace) LinearImage {
	format, ok := d.sniff(stream, sourceName)
	if !ok {
		return LinearImage{}
	}

	decoder := format.New(stream)
	space := sourceSpace
	if format.ForceColorSpace {
		space = format.ColorSpace
	}
	decoder.SetColorSpace(space)

	img := decoder.Decode()
	if img.Empty() {
		slog.Debug("imagedec: decode produced no image", "source", sourceName, "format", format.Name)
	}
	return img
}

// sniff reads the signature head and restores the stream position before returning
func (d *Dispatcher) sniff(stream io.ReadSeeker, sourceName string) (Format, bool) {
	pos, err := stream.Seek(0, io.SeekCurrent)
	if err != nil {
		slog.Debug("imagedec: stream is not seekable", "source", sourceName, "error", err)
		return Format{}, false
	}

	head := make([]byte, SignatureSize)
	n, _ := io.ReadFull(stream, head)
	head = head[:n]

	// The position is restored whatever the outcome.
	if _, err := stream.Seek(pos, io.SeekStart); err != nil {
		slog.Debug("imagedec: failed to restore stream position", "source", sourceName, "error", err)
		return Format{}, false
	}

	for _, format := range d.formats {
		if format.Matches(head) {
			return format, true
		}
	}

	slog.Debug("imagedec: no decoder for stream",
		"source", sourceName,
		"head_bytes", n,
		"detected", Identify(head),
	)
	return Format{}, false
}

// Identify returns the MIME type of the file whose first bytes are head, or
// an empty string when it is not recognized. Radiance heads identify as
// image/vnd.radiance whether or not a dispatcher registers that format.
func Identify(head []byte) string {
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return ""
	}
	return kind.MIME.Value
}

// Decode decodes a stream with the default dispatcher
func Decode(stream io.ReadSeeker, sourceName string, sourceSpace ColorSpace) LinearImage {
	return DefaultDispatcher().Decode(stream, sourceName, sourceSpace)
}
