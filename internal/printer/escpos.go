package printer

import (
	"bytes"
	"time"
)

var (
	escInit      = []byte{0x1B, 0x40}             // ESC @
	escFeedLines = []byte{0x1B, 0x64, 0x03}       // ESC d 3
	gsPartialCut = []byte{0x1D, 0x56, 0x41, 0x00} // GS V A 0
)

// DiagnosticTicket builds a plain-text ticket used to check the printer end to end.
func DiagnosticTicket(printerName, addr string, now time.Time) []byte {
	var b bytes.Buffer
	b.Write(escInit)
	b.WriteString("printbridge test ticket\n")
	b.WriteString("--------------------------------\n")
	b.WriteString("printer: " + printerName + "\n")
	b.WriteString("address: " + addr + "\n")
	b.WriteString("time:    " + now.Format(time.RFC3339) + "\n")
	b.Write(escFeedLines)
	b.Write(gsPartialCut)
	return b.Bytes()
}
