// Package zpl generates ZPL II command streams for thermal label printers
package zpl

import (
	"bytes"
	"fmt"
	"strings"
)

// DotsPerMM is the resolution of a 203dpi print head
const DotsPerMM = 8

// Encoder builds a ZPL command stream
type Encoder struct {
	buffer *bytes.Buffer
}

// NewEncoder creates a new ZPL encoder
func NewEncoder() *Encoder {
	return &Encoder{
		buffer: new(bytes.Buffer),
	}
}

// StartLabel opens a label format
func (e *Encoder) StartLabel() {
	e.buffer.WriteString("^XA")
}

// EndLabel closes a label format
func (e *Encoder) EndLabel() {
	e.buffer.WriteString("^XZ")
}

// SetWidth sets the print width in dots
func (e *Encoder) SetWidth(dots int) {
	fmt.Fprintf(e.buffer, "^PW%d", dots)
}

// SetLength sets the label length in dots
func (e *Encoder) SetLength(dots int) {
	fmt.Fprintf(e.buffer, "^LL%d", dots)
}

// SetDarkness sets media darkness (0-30)
func (e *Encoder) SetDarkness(d int) {
	if d < 0 {
		d = 0
	}
	if d > 30 {
		d = 30
	}
	fmt.Fprintf(e.buffer, "^MD%d", d)
}

// SetSpeed sets print speed in inches per second
func (e *Encoder) SetSpeed(ips int) {
	if ips < 1 {
		ips = 1
	}
	if ips > 14 {
		ips = 14
	}
	fmt.Fprintf(e.buffer, "^PR%d", ips)
}

// Text places a text field at x,y with the given font height in dots
func (e *Encoder) Text(x, y, height int, text string) {
	if text == "" {
		return
	}
	fmt.Fprintf(e.buffer, "^FO%d,%d^A0N,%d,%d^FD%s^FS", x, y, height, height, sanitize(text))
}

// Line draws a horizontal rule of the given width and thickness
func (e *Encoder) Line(x, y, width, thickness int) {
	fmt.Fprintf(e.buffer, "^FO%d,%d^GB%d,%d,%d^FS", x, y, width, thickness, thickness)
}

// Barcode places a Code 128 barcode at x,y
func (e *Encoder) Barcode(x, y, height int, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(e.buffer, "^FO%d,%d^BY2^BCN,%d,N,N,N^FD%s^FS", x, y, height, sanitize(value))
}

// QRCode places a QR code at x,y with the given magnification
func (e *Encoder) QRCode(x, y, magnification int, value string) {
	if value == "" {
		return
	}
	if magnification < 1 {
		magnification = 1
	}
	fmt.Fprintf(e.buffer, "^FO%d,%d^BQN,2,%d^FDQA,%s^FS", x, y, magnification, sanitize(value))
}

// Quantity sets the number of labels the printer itself should emit
func (e *Encoder) Quantity(n int) {
	if n < 1 {
		n = 1
	}
	fmt.Fprintf(e.buffer, "^PQ%d", n)
}

// Bytes returns the generated command stream
func (e *Encoder) Bytes() []byte {
	return e.buffer.Bytes()
}

// Reset clears the buffer
func (e *Encoder) Reset() {
	e.buffer.Reset()
}

// sanitize strips the ZPL control characters from field data. ^ and ~ start
// commands mid-field and would corrupt the stream.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "^", " ")
	s = strings.ReplaceAll(s, "~", " ")
	return s
}
