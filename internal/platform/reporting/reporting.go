// Package reporting exposes aggregate practice measures computed directly in
// PostgreSQL: patient counts, consultation volume per specialty, appointment
// and consent status breakdowns.
package reporting

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medconsult/medconsult/internal/platform/auth"
	"github.com/medconsult/medconsult/internal/platform/db"
)

// MeasureDefinition defines a reporting measure with its SQL query. Every
// parameter is a YYYY-MM-DD date bound to the query in order; an omitted
// parameter is bound as NULL.
type MeasureDefinition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	SQL         string   `json:"-"`
	Parameters  []string `json:"parameters"`
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	Results     []map[string]interface{} `json:"results"`
	Parameters  map[string]string        `json:"parameters,omitempty"`
}

const dateLayout = "2006-01-02"

// PredefinedMeasures is the list of available reporting measures.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "patient-count",
		Name:        "Pacientes registrados",
		Description: "Total de pacientes y cuántos están activos",
		SQL:         `SELECT COUNT(*) AS total, COALESCE(SUM(CASE WHEN active THEN 1 ELSE 0 END), 0) AS active_count FROM patient`,
		Parameters:  []string{},
	},
	{
		ID:          "consultations-by-specialty",
		Name:        "Consultas por especialidad",
		Description: "Número de consultas registradas por especialidad en el periodo",
		SQL: `SELECT s.name AS specialty, COUNT(c.id) AS total
			FROM specialty s
			LEFT JOIN consultation c ON c.specialty_id = s.id
				AND ($1::date IS NULL OR c.created_at >= $1::date)
				AND ($2::date IS NULL OR c.created_at < $2::date + 1)
			GROUP BY s.name ORDER BY total DESC, s.name`,
		Parameters: []string{"from", "to"},
	},
	{
		ID:          "appointments-by-status",
		Name:        "Citas por estado",
		Description: "Número de citas por estado en el periodo",
		SQL: `SELECT status, COUNT(*) AS total FROM appointment
			WHERE ($1::date IS NULL OR date >= $1::date) AND ($2::date IS NULL OR date <= $2::date)
			GROUP BY status ORDER BY total DESC`,
		Parameters: []string{"from", "to"},
	},
	{
		ID:          "consents-by-status",
		Name:        "Consentimientos por estado",
		Description: "Consentimientos informados vigentes y revocados",
		SQL:         `SELECT status, COUNT(*) AS total FROM consent GROUP BY status ORDER BY total DESC`,
		Parameters:  []string{},
	},
	{
		ID:          "anonymous-consultations",
		Name:        "Consultas anónimas",
		Description: "Consultas sin paciente identificado frente al total del periodo",
		SQL: `SELECT COUNT(*) AS total,
				COALESCE(SUM(CASE WHEN patient_id IS NULL THEN 1 ELSE 0 END), 0) AS anonymous
			FROM consultation
			WHERE ($1::date IS NULL OR created_at >= $1::date) AND ($2::date IS NULL OR created_at < $2::date + 1)`,
		Parameters: []string{"from", "to"},
	},
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	db db.Querier
}

// NewHandler creates a new reporting handler.
func NewHandler(q db.Querier) *Handler {
	return &Handler{db: q}
}

// RegisterRoutes registers the reporting API routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	reportGroup := api.Group("/reports", auth.RequireRole(auth.RoleAdmin, auth.RolePhysician))
	reportGroup.GET("/measures", h.ListMeasures)
	reportGroup.GET("/measures/:id/evaluate", h.EvaluateMeasure)
}

// ListMeasures returns all available measure definitions.
func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

// EvaluateMeasure executes a measure's SQL and returns the results.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	measure := FindMeasure(c.Param("id"))
	if measure == nil {
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	}

	params := map[string]string{}
	args := make([]interface{}, 0, len(measure.Parameters))
	for _, p := range measure.Parameters {
		v := c.QueryParam(p)
		if v == "" {
			args = append(args, nil)
			continue
		}
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid %s date", p))
		}
		params[p] = v
		args = append(args, d)
	}

	results, err := h.executeSQL(c.Request().Context(), measure.SQL, args...)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "query failed").SetInternal(err)
	}

	report := MeasureReport{
		MeasureID:   measure.ID,
		MeasureName: measure.Name,
		GeneratedAt: time.Now(),
		Results:     results,
		Parameters:  params,
	}

	return c.JSON(http.StatusOK, report)
}

// executeSQL runs a SQL query and returns results as a slice of maps.
func (h *Handler) executeSQL(ctx context.Context, sql string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := h.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	var results []map[string]interface{}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(fieldDescs))
		for i, fd := range fieldDescs {
			row[fd.Name] = values[i]
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if results == nil {
		results = []map[string]interface{}{}
	}

	return results, nil
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}
