package printer

import (
	"encoding/json"
	"fmt"
)

// Tri is a three-valued flag: a status bit the printer has not reported yet is Unknown, not false.
type Tri uint8

const (
	Unknown Tri = iota
	True
	False
)

// TriOf converts a known bool.
func TriOf(b bool) Tri {
	if b {
		return True
	}
	return False
}

// Known reports whether the value has been observed.
func (t Tri) Known() bool { return t == True || t == False }

// Bool returns the value and whether it is known.
func (t Tri) Bool() (value, known bool) {
	return t == True, t.Known()
}

func (t Tri) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

func (t Tri) MarshalJSON() ([]byte, error) {
	switch t {
	case True:
		return []byte("true"), nil
	case False:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (t *Tri) UnmarshalJSON(b []byte) error {
	var v *bool
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("printer flag: %w", err)
	}
	if v == nil {
		*t = Unknown
		return nil
	}
	*t = TriOf(*v)
	return nil
}

// Status is the printer health snapshot reported with every check-in.
type Status struct {
	Online    Tri `json:"isPrinterOnline"`
	CoverOpen Tri `json:"isCoverOpen"`
	PaperOut  Tri `json:"isPaperOut"`
	PaperLow  Tri `json:"isPaperLow"`
}

func (s Status) String() string {
	return fmt.Sprintf("online=%s cover_open=%s paper_out=%s paper_low=%s", s.Online, s.CoverOpen, s.PaperOut, s.PaperLow)
}

// Status classes for the DLE EOT real-time status request.
const (
	ClassPrinter byte = 0x01 // online, cover, paper out
	ClassPaper   byte = 0x02 // paper low, paper out
)

// StatusRequest returns the DLE EOT n bytes for a class.
func StatusRequest(class byte) []byte {
	return []byte{0x10, 0x04, class}
}

// DecodeStatus applies one status byte of the given class on top of prev.
// Fields the class does not cover keep their previous value.
func DecodeStatus(class, b byte, prev Status) Status {
	next := prev
	switch class {
	case ClassPrinter:
		next.Online = TriOf(b&0x02 != 0)
		next.CoverOpen = TriOf(b&0x04 != 0)
		next.PaperOut = TriOf(b&0x08 != 0)
	case ClassPaper:
		next.PaperLow = TriOf(b&0x02 != 0)
		next.PaperOut = TriOf(b&0x04 != 0)
	}
	return next
}
