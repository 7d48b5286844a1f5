// Package ticketpdf renders a printable ticket. The sheet carries the ticket
// number for staff-side lookup and the full credential for the QR scanner.
package ticketpdf

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/kirinyoku/bustix/internal/domain"
	"github.com/phpdave11/gofpdf"
)

// Render builds an A4 PDF for t with journey times shown in loc.
func Render(t *domain.Ticket, loc *time.Location) ([]byte, string, error) {
	const op = "ticketpdf.Render"

	if loc == nil {
		loc = time.UTC
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Bus ticket "+t.TicketNumber, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "BUS TICKET")
	pdf.Ln(12)

	pdf.SetFont("Courier", "B", 14)
	pdf.Cell(0, 8, t.TicketNumber)
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		fmt.Sprintf("Passenger : %s (%s, %d)", safe(t.Passenger.Name), safe(t.Passenger.Gender), t.Passenger.Age),
		fmt.Sprintf("Route     : %s -> %s", safe(t.Journey.From), safe(t.Journey.To)),
		fmt.Sprintf("Departure : %s", t.Journey.DepartureTime.In(loc).Format("2006-01-02 15:04 MST")),
		fmt.Sprintf("Arrival   : %s", t.Journey.ArrivalTime.In(loc).Format("2006-01-02 15:04 MST")),
		fmt.Sprintf("Seat      : %s", safe(t.Journey.SeatNumber)),
		fmt.Sprintf("Price     : %s", formatAmount(t.Price)),
		fmt.Sprintf("Status    : %s", t.Status),
	}
	for _, s := range lines {
		pdf.Cell(0, 7, s)
		pdf.Ln(7)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.Cell(0, 6, "Credential")
	pdf.Ln(6)
	pdf.SetFont("Courier", "", 8)
	pdf.MultiCell(0, 4, t.Credential, "1", "L", false)

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, "Valid for one passenger on the date of departure only. Present at boarding.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", fmt.Errorf("%s:%w", op, err)
	}

	return buf.Bytes(), "ticket_" + safeFilenamePart(t.TicketNumber) + ".pdf", nil
}

func safe(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// formatAmount renders minor units as a decimal amount.
func formatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

func safeFilenamePart(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
