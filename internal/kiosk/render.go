package kiosk

import (
	"fmt"
	"io"
	"strings"

	"github.com/iliyamo/kiosk-seat-engine/internal/model"
)

// Seat glyphs used by Render.
const (
	glyphAvailable = '.'
	glyphMine      = '*'
	glyphLocked    = 'L'
	glyphReserved  = 'R'
	glyphOccupied  = 'X'
)

// Glyph returns the single-character picture of a seat as seen by session.
func Glyph(s model.Seat, session SessionIdentity) rune {
	switch s.Status {
	case model.SeatLocked:
		if s.OwnerToken == string(session) {
			return glyphMine
		}
		return glyphLocked
	case model.SeatReserved:
		return glyphReserved
	case model.SeatOccupied:
		return glyphOccupied
	}
	return glyphAvailable
}

// Render draws the view as one line per seat row, e.g.
//
//	12  A. B* CL DR
func Render(w io.Writer, v View) error {
	header := fmt.Sprintf("flight %s  available %d", v.FlightID, v.AvailableCount)
	if v.Stale {
		header += "  [offline, seat map may be out of date]"
	}
	if v.Selected != "" {
		header += "  selected " + v.Selected
	}
	if v.Confirmed != "" {
		header += fmt.Sprintf("  confirmed %s (%s)", v.Confirmed, v.BookingID)
	}
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}

	var (
		row  = -1
		line strings.Builder
	)
	flush := func() error {
		if line.Len() == 0 {
			return nil
		}
		_, err := fmt.Fprintln(w, strings.TrimRight(line.String(), " "))
		line.Reset()
		return err
	}
	for _, s := range v.Seats {
		r, letter := splitNumber(s.SeatNumber)
		if r != row {
			if err := flush(); err != nil {
				return err
			}
			row = r
			fmt.Fprintf(&line, "%3d  ", r)
		}
		fmt.Fprintf(&line, "%s%c ", letter, Glyph(s, v.Session))
	}
	return flush()
}

func splitNumber(n string) (int, string) {
	i := 0
	row := 0
	for i < len(n) && n[i] >= '0' && n[i] <= '9' {
		row = row*10 + int(n[i]-'0')
		i++
	}
	return row, n[i:]
}
