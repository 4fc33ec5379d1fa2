// Package ticketpdf renders a purchased ticket as a printable one-page PDF.
package ticketpdf

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/iliyamo/train-seat-reservation/internal/model"
)

// Holder is the passenger printed on the ticket.
type Holder struct {
	Name  string
	Email string
}

// Render lays out t on an A4 page.  verifyURL, when set, is printed as a QR
// code so staff can look the ticket up.
func Render(t model.TicketRecord, h Holder, verifyURL string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 22)
	pdf.Cell(0, 15, "TRAIN E-TICKET")
	pdf.Ln(18)
	pdf.SetDrawColor(220, 220, 220)
	pdf.Line(15, pdf.GetY(), 195, pdf.GetY())
	pdf.Ln(8)

	y := pdf.GetY()
	pdf.SetFillColor(245, 245, 245)
	pdf.Rect(15, y, 120, 55, "F")
	pdf.SetXY(20, y+7)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, "JOURNEY")
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 12)
	for _, line := range []string{
		fmt.Sprintf("Train: %s (%s)", t.ServiceName, t.ServiceCode),
		fmt.Sprintf("From: %s", t.From),
		fmt.Sprintf("To: %s", t.To),
		fmt.Sprintf("Date: %s", t.ServiceDate),
	} {
		pdf.SetX(20)
		pdf.Cell(0, 8, tr(line))
		pdf.Ln(7)
	}

	if verifyURL != "" {
		png, err := qrcode.Encode(verifyURL, qrcode.Medium, 256)
		if err != nil {
			return nil, fmt.Errorf("qr code: %w", err)
		}
		opt := gofpdf.ImageOptions{ImageType: "png"}
		pdf.RegisterImageOptionsReader("qr", opt, bytes.NewReader(png))
		pdf.ImageOptions("qr", 145, y+5, 45, 0, false, opt, 0, "")
	}

	pdf.SetY(y + 63)
	section(pdf, "SEATS")
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Car %s, %s: %s", t.CarID, t.SeatClass, seatList(t.Seats)))
	pdf.Ln(10)

	section(pdf, "PASSENGER")
	pdf.SetFont("Helvetica", "", 12)
	if h.Name != "" {
		pdf.Cell(0, 8, tr("Name: "+h.Name))
		pdf.Ln(6)
	}
	if h.Email != "" {
		pdf.Cell(0, 8, tr("Email: "+h.Email))
		pdf.Ln(6)
	}
	pdf.Ln(4)

	section(pdf, "PAYMENT")
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Total paid: %d %s", t.PricePaid, t.Currency))
	pdf.Ln(6)
	pdf.Cell(0, 8, "Purchased: "+t.PurchasedAt.UTC().Format("2006-01-02 15:04 UTC"))
	pdf.Ln(6)
	if t.PaymentRef != "" {
		pdf.Cell(0, 8, tr("Reference: "+t.PaymentRef))
		pdf.Ln(6)
	}

	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(15, 285, 195, 285)
	pdf.SetY(288)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.CellFormat(0, 8, "Ticket "+t.ID, "", 0, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetFillColor(240, 240, 240)
	pdf.CellFormat(0, 9, title, "", 1, "L", true, 0, "")
	pdf.Ln(3)
}

func seatList(seats []int) string {
	s := make([]string, len(seats))
	for i, n := range seats {
		s[i] = strconv.Itoa(n)
	}
	return strings.Join(s, ", ")
}
