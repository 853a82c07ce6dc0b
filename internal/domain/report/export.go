package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/360EntSecGroup-Skylar/excelize"
	"github.com/google/uuid"

	"github.com/medconsult/medconsult/internal/domain/consultation"
	"github.com/medconsult/medconsult/internal/domain/forms"
	"github.com/medconsult/medconsult/internal/platform/auth"
	"github.com/medconsult/medconsult/internal/platform/blobstore"
)

const (
	exportSheet    = "Consultas"
	exportPageSize = 200
	maxExportRows  = 5000
)

var exportHeaders = []string{"Fecha", "Consulta", "Especialidad", "Edad", "Sexo", "Paciente", "Escalas", "Alertas"}

func column(i int) string { return string(rune('A' + i)) }

// Export writes the consultations matching filter as an xlsx workbook, one
// row per consultation with its scores and alert count.
func (s *Service) Export(ctx context.Context, filter consultation.ListFilter) ([]byte, int, error) {
	specialties, err := s.forms.ListSpecialties(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list specialties: %w", err)
	}
	byID := make(map[uuid.UUID]*forms.Specialty, len(specialties))
	for _, sp := range specialties {
		byID[sp.ID] = sp
	}

	file := excelize.NewFile()
	file.NewSheet(exportSheet)
	file.DeleteSheet("Sheet1")
	for i, h := range exportHeaders {
		file.SetCellValue(exportSheet, column(i)+"1", h)
	}
	file.SetColWidth(exportSheet, "A", "A", 18)
	file.SetColWidth(exportSheet, "B", "B", 38)
	file.SetColWidth(exportSheet, "G", "G", 60)

	rows := 0
	for offset := 0; rows < maxExportRows; offset += exportPageSize {
		items, total, err := s.consultations.ListConsultations(ctx, filter, exportPageSize, offset)
		if err != nil {
			return nil, 0, fmt.Errorf("list consultations: %w", err)
		}
		for _, c := range items {
			if rows == maxExportRows {
				break
			}
			appendRow(file, rows+2, c, byID[c.SpecialtyID])
			rows++
		}
		if len(items) == 0 || offset+len(items) >= total {
			break
		}
	}

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("write workbook: %w", err)
	}
	s.logger.Info().Int("rows", rows).Msg("consultation export generated")
	return buf.Bytes(), rows, nil
}

func appendRow(file *excelize.File, row int, c *consultation.Consultation, sp *forms.Specialty) {
	r := Generate(definitionFor(sp), nil, withDemographics(c))
	var scores []string
	for _, sc := range r.Scores {
		if sc.Value == nil {
			continue
		}
		entry := sc.Label + " " + formatNumber(*sc.Value)
		if sc.Interpretation != "" {
			entry += " (" + sc.Interpretation + ")"
		}
		scores = append(scores, entry)
	}
	specialty := ""
	if sp != nil {
		specialty = sp.Name
	}
	patient := ""
	switch {
	case c.PatientID != nil:
		patient = c.PatientID.String()
	case c.AnonymousPatientID != nil:
		patient = "anónimo " + c.AnonymousPatientID.String()
	}

	values := []interface{}{
		c.CreatedAt.Format("2006-01-02 15:04"),
		c.ID.String(),
		specialty,
		c.Age,
		c.Gender,
		patient,
		strings.Join(scores, "; "),
		r.AlertCount,
	}
	for i, v := range values {
		file.SetCellValue(exportSheet, fmt.Sprintf("%s%d", column(i), row), v)
	}
}

// ArchiveExport stores a generated workbook in the blob store.
func (s *Service) ArchiveExport(ctx context.Context, workbook []byte) (*blobstore.Metadata, error) {
	if s.blobs == nil {
		return nil, ErrNoArchive
	}
	return s.blobs.Upload(ctx, blobstore.Metadata{
		FileName:    fmt.Sprintf("consultas-%s.xlsx", s.now().UTC().Format("20060102-150405")),
		ContentType: blobstore.ContentTypeXLSX,
		Category:    blobstore.CategoryExport,
		CreatedBy:   auth.UserIDFromContext(ctx),
	}, bytes.NewReader(workbook))
}
