package consent

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

// ErrInvalidSignature is returned for a signature that is not a PNG or JPEG
// data URL.
var ErrInvalidSignature = errors.New("invalid signature image")

const (
	pageMargin = 20.0
	lineHeight = 6.0
)

// Clinic identifies the practice printed in the document header.
type Clinic struct {
	Name    string
	Address string
}

// decodeSignature splits a data URL into its fpdf image type and bytes.
func decodeSignature(dataURL string) (string, []byte, error) {
	header, payload, ok := strings.Cut(dataURL, ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return "", nil, ErrInvalidSignature
	}
	var imageType string
	switch strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64") {
	case "image/png":
		imageType = "PNG"
	case "image/jpeg":
		imageType = "JPG"
	default:
		return "", nil, ErrInvalidSignature
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(data) == 0 {
		return "", nil, ErrInvalidSignature
	}
	return imageType, data, nil
}

// RenderPDF lays out the consent document for c. signature, when not empty,
// is embedded above the patient's signature line.
func RenderPDF(clinic Clinic, c *Consent, signature string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetCreationDate(c.SignedAt)
	pdf.SetModificationDate(c.SignedAt)
	pdf.SetTitle("Consentimiento informado", true)
	pdf.SetAuthor(clinic.Name, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	width, _ := pdf.GetPageSize()
	content := width - 2*pageMargin

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(content, lineHeight, tr(clinic.Name), "", 1, "L", false, 0, "")
	if clinic.Address != "" {
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(content, lineHeight, tr(clinic.Address), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 15)
	pdf.CellFormat(content, 10, tr("CONSENTIMIENTO INFORMADO"), "B", 1, "C", false, 0, "")
	pdf.Ln(4)

	field := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(45, lineHeight, tr(label), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(content-45, lineHeight, tr(value), "", "L", false)
	}
	field("Paciente:", c.PatientName)
	if c.DocumentID != nil {
		field("Documento:", *c.DocumentID)
	}
	field("Procedimiento:", c.Procedure)
	field("Médico responsable:", c.PhysicianName)
	pdf.Ln(3)

	section := func(title, body string) {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(content, lineHeight+1, tr(title), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(content, lineHeight-0.5, tr(body), "", "J", false)
		pdf.Ln(2)
	}
	if c.Description != nil {
		section("Descripción del procedimiento", *c.Description)
	}
	if len(c.Risks) > 0 {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(content, lineHeight+1, tr("Riesgos"), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		for _, r := range c.Risks {
			pdf.MultiCell(content, lineHeight-0.5, tr("- "+r), "", "L", false)
		}
		pdf.Ln(2)
	}
	if c.Alternatives != nil {
		section("Alternativas", *c.Alternatives)
	}

	section("Declaración", fmt.Sprintf(
		"Yo, %s, declaro que he sido informado/a por %s de la naturaleza del procedimiento, "+
			"sus riesgos y alternativas, que he podido formular preguntas y que doy mi consentimiento "+
			"para su realización. Puedo revocar este consentimiento en cualquier momento.",
		c.PatientName, c.PhysicianName))

	place := ""
	if c.Place != nil {
		place = *c.Place + ", "
	}
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(content, lineHeight, tr(place+"a "+formatDate(c.SignedAt)), "", 1, "R", false, 0, "")
	pdf.Ln(6)

	y := pdf.GetY()
	half := content / 2
	if signature != "" {
		imageType, data, err := decodeSignature(signature)
		if err != nil {
			return nil, err
		}
		pdf.RegisterImageOptionsReader("firma", fpdf.ImageOptions{ImageType: imageType}, bytes.NewReader(data))
		pdf.ImageOptions("firma", pageMargin+5, y, half-10, 0, false, fpdf.ImageOptions{ImageType: imageType}, 0, "")
		if info := pdf.GetImageInfo("firma"); info != nil {
			y += (half - 10) * info.Height() / info.Width()
		}
	} else {
		y += 20
	}
	pdf.SetY(y + 2)
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(half-5, lineHeight, tr("Firma del paciente"), "T", 0, "C", false, 0, "")
	pdf.CellFormat(10, lineHeight, "", "", 0, "C", false, 0, "")
	pdf.CellFormat(half-5, lineHeight, tr("Firma del médico"), "T", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render consent pdf: %w", err)
	}
	return buf.Bytes(), nil
}

var months = [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio",
	"agosto", "septiembre", "octubre", "noviembre", "diciembre"}

func formatDate(t time.Time) string {
	return fmt.Sprintf("%d de %s de %d", t.Day(), months[t.Month()-1], t.Year())
}
