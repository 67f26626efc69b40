// Package badge renders the printable entry pass for an approved
// registration: an A6 PDF carrying the attendee details and the QR code
// scanned at the door.
package badge

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-pdf/fpdf"
	qrcode "github.com/skip2/go-qrcode"

	"gatepass.org/internal/qr"
	"gatepass.org/internal/registry"
)

const qrImageSize = 512 // px

type Issuer struct {
	store registry.Store
	dir   string
	now   func() time.Time
}

// NewIssuer writes rendered badges under dir, one PDF per registration.
func NewIssuer(store registry.Store, dir string) *Issuer {
	return &Issuer{store: store, dir: dir, now: time.Now}
}

// Issue mints the QR payload, renders the PDF and upserts the badge
// row. Re-issuing overwrites the previous artifact and payload.
func (i *Issuer) Issue(ctx context.Context, reg *registry.Registration, event *registry.Event) (*registry.Badge, error) {
	issued := i.now().UTC()
	payload, err := qr.Encode(qr.Payload{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		Attendee:       reg.FullName,
		IssuedAt:       &issued,
	})
	if err != nil {
		return nil, fmt.Errorf("badge: encode payload: %w", err)
	}

	png, err := qrcode.Encode(payload, qrcode.Medium, qrImageSize)
	if err != nil {
		return nil, fmt.Errorf("badge: render qr: %w", err)
	}

	if err := os.MkdirAll(i.dir, 0o755); err != nil {
		return nil, fmt.Errorf("badge: create output dir: %w", err)
	}
	path := filepath.Join(i.dir, "badge-"+reg.ID+".pdf")
	if err := renderPDF(path, reg, event, png); err != nil {
		return nil, fmt.Errorf("badge: render pdf: %w", err)
	}

	b := &registry.Badge{
		RegistrationID: reg.ID,
		Payload:        payload,
		ArtifactPath:   path,
		IssuedAt:       issued,
	}
	if err := i.store.SaveBadge(ctx, b); err != nil {
		return nil, fmt.Errorf("badge: save: %w", err)
	}
	return b, nil
}

// Get returns the stored badge for a registration.
func (i *Issuer) Get(ctx context.Context, registrationID string) (*registry.Badge, error) {
	return i.store.GetBadgeByRegistration(ctx, registrationID)
}

func renderPDF(path string, reg *registry.Registration, event *registry.Event, qrPNG []byte) error {
	pdf := fpdf.New("P", "mm", "A6", "")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, event.Name, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, event.DateTime.Format("2 Jan 2006, 15:04")+" - "+event.Location, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, reg.FullName, "", 1, "C", false, 0, "")
	if reg.Organization != "" {
		pdf.SetFont("Helvetica", "I", 10)
		pdf.CellFormat(0, 6, reg.Organization, "", 1, "C", false, 0, "")
	}

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(qrPNG))
	pageW, _ := pdf.GetPageSize()
	const qrSide = 60.0
	pdf.ImageOptions("qr", (pageW-qrSide)/2, pdf.GetY()+4, qrSide, qrSide, false, opts, 0, "")

	return pdf.OutputFileAndClose(path)
}
