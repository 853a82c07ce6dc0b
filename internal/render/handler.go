package render

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medconsult/medconsult/internal/domain/consultation"
	"github.com/medconsult/medconsult/internal/domain/forms"
	"github.com/medconsult/medconsult/internal/platform/auth"
)

// Templates is the template source of the form endpoints.
type Templates interface {
	TemplateLoader
	GetTemplate(ctx context.Context, id uuid.UUID) (*forms.FormTemplate, error)
}

type Handler struct {
	store     *Store
	templates Templates
	submitter Submitter
	engine    *Engine
	logger    zerolog.Logger
}

func NewHandler(store *Store, templates Templates, submitter Submitter, engine *Engine, logger zerolog.Logger) *Handler {
	if engine == nil {
		engine = NewEngine(nil)
	}
	return &Handler{store: store, templates: templates, submitter: submitter, engine: engine, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.Clinical...))
	g.POST("/form-sessions", h.CreateSession)
	g.GET("/form-sessions/:id", h.GetSession)
	g.PUT("/form-sessions/:id/specialty", h.SelectSpecialty)
	g.PUT("/form-sessions/:id/basic-data", h.SetBasicData)
	g.PUT("/form-sessions/:id/answers", h.SetAnswers)
	g.PUT("/form-sessions/:id/section", h.MoveSection)
	g.POST("/form-sessions/:id/submit", h.Submit)
	g.DELETE("/form-sessions/:id", h.DeleteSession)

	readGroup := api.Group("", auth.RequireRole(auth.Staff...))
	readGroup.POST("/form-templates/:id/render", h.RenderTemplate)
}

func sessionError(err error) error {
	switch {
	case errors.Is(err, consultation.ErrIncompleteData), errors.Is(err, consultation.ErrInvalidAge):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	case errors.Is(err, ErrCalculatedField), errors.Is(err, ErrUnknownField),
		errors.Is(err, ErrInvalidValue), errors.Is(err, ErrNoSuchSection):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidState):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, forms.ErrNotFound), errors.Is(err, consultation.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
}

func (h *Handler) session(c echo.Context) (*Session, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	s, ok := h.store.Get(id)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "form session not found")
	}
	return s, nil
}

type createSessionRequest struct {
	SpecialtyID uuid.UUID `json:"specialty_id"`
	Incremental bool      `json:"incremental"`
}

func (h *Handler) CreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var opts []Option
	if req.Incremental {
		opts = append(opts, WithIncrementalRecompute())
	}
	s := NewSession(h.templates, h.submitter, h.engine, opts...)
	if req.SpecialtyID != uuid.Nil {
		if err := s.SelectSpecialty(c.Request().Context(), req.SpecialtyID); err != nil {
			return sessionError(err)
		}
	}
	h.store.Put(s)
	h.logger.Debug().Str("session_id", s.ID().String()).Msg("form session started")
	return c.JSON(http.StatusCreated, s.Snapshot())
}

func (h *Handler) GetSession(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.Snapshot())
}

func (h *Handler) SelectSpecialty(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.SpecialtyID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "specialty_id is required")
	}
	if err := s.SelectSpecialty(c.Request().Context(), req.SpecialtyID); err != nil {
		return sessionError(err)
	}
	return c.JSON(http.StatusOK, s.Snapshot())
}

func (h *Handler) SetBasicData(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var basic consultation.BasicData
	if err := c.Bind(&basic); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.SetBasicData(basic); err != nil {
		return sessionError(err)
	}
	return c.JSON(http.StatusOK, s.Snapshot())
}

type answersRequest struct {
	Answers forms.AnswerMap `json:"answers"`
	// Age and gender feed scores in stateless renders.
	Age    consultation.Age `json:"age"`
	Gender string           `json:"gender"`
}

// SetAnswers applies all answers or, on any rejection, none of them.
func (h *Handler) SetAnswers(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var req answersRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.SetAnswers(req.Answers); err != nil {
		return sessionError(err)
	}
	return c.JSON(http.StatusOK, s.Snapshot())
}

type sectionRequest struct {
	Index *int   `json:"index"`
	Move  string `json:"move"`
}

func (h *Handler) MoveSection(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var req sectionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	switch {
	case req.Index != nil:
		err = s.GoToSection(*req.Index)
	case req.Move == "next":
		err = s.Next()
	case req.Move == "prev":
		err = s.Prev()
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "index or move (next|prev) is required")
	}
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(http.StatusOK, s.Snapshot())
}

func (h *Handler) Submit(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var basic consultation.BasicData
	if err := c.Bind(&basic); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out, err := s.Submit(c.Request().Context(), basic)
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) DeleteSession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if !h.store.Delete(id) {
		return echo.NewHTTPError(http.StatusNotFound, "form session not found")
	}
	return c.NoContent(http.StatusNoContent)
}

type renderResponse struct {
	Answers forms.AnswerMap `json:"answers"`
	View    View            `json:"view"`
}

// RenderTemplate evaluates a template against posted answers without a
// session.
func (h *Handler) RenderTemplate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req answersRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	tpl, err := h.templates.GetTemplate(c.Request().Context(), id)
	if err != nil {
		return sessionError(err)
	}
	basic := consultation.BasicData{Age: req.Age, Gender: req.Gender}
	answers, view := h.engine.Evaluate(tpl, req.Answers, basic.Inputs())
	return c.JSON(http.StatusOK, renderResponse{Answers: answers, View: view})
}
