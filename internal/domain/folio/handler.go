package folio

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/folio/internal/domain/documents"
	"github.com/ehr/folio/internal/domain/encounter"
	"github.com/ehr/folio/internal/domain/filing"
	"github.com/ehr/folio/internal/domain/identity"
	"github.com/ehr/folio/internal/platform/auth"
	"github.com/ehr/folio/internal/platform/blobstore"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/session/identify", h.Identify)
	api.POST("/session/booking", h.Book)
	api.GET("/session", h.GetSession)
	api.PUT("/session/observation", h.SetObservation)
	api.DELETE("/session", h.Leave)
	api.GET("/shell/can-exit", h.CanExit)

	api.GET("/codes", h.ListCodes)

	api.POST("/documents", h.Attach)
	api.GET("/documents", h.ListDocuments)
	api.GET("/documents/validation", h.ValidateDocuments)
	api.PUT("/documents/:id/type-code", h.SetTypeCode)
	api.DELETE("/documents/:id", h.RemoveDocument)

	api.POST("/folio/save", h.Save)
	api.GET("/flash", h.TakeFlash)
}

// AnnotateLog adds the folio and save state to request log lines.
func (h *Handler) AnnotateLog(_ echo.Context, evt *zerolog.Event) *zerolog.Event {
	v := h.svc.View()
	return evt.
		Str("folio_state", string(v.State)).
		Str("save_state", string(v.SaveState)).
		Int("documents", v.Documents)
}

type identifyRequest struct {
	DocumentType   string `json:"document_type" validate:"required,max=4"`
	DocumentNumber string `json:"document_number" validate:"required,max=20"`
}

type observationRequest struct {
	Observation string `json:"observation" validate:"max=500"`
}

type typeCodeRequest struct {
	TypeCode string `json:"type_code" validate:"required"`
}

type saveRequest struct {
	Confirm *bool `json:"confirm" validate:"required"`
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.Validate(req)
}

// toHTTPError maps domain errors to status codes.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, identity.ErrMissingInput),
		errors.Is(err, documents.ErrInvalidTypeCode),
		errors.Is(err, blobstore.ErrMissingFileName):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrNotFound),
		errors.Is(err, documents.ErrDocumentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, identity.ErrLookupFailed):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, ErrNavigationBlocked),
		errors.Is(err, ErrNoFolio),
		errors.Is(err, encounter.ErrNotIdentified),
		errors.Is(err, documents.ErrRecordAccepted),
		errors.Is(err, filing.ErrSaveInProgress):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// -- Session --

func (h *Handler) Identify(c echo.Context) error {
	var req identifyRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	id, err := h.svc.Identify(c.Request().Context(), req.DocumentType, req.DocumentNumber)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, id)
}

func (h *Handler) Book(c echo.Context) error {
	report, err := h.svc.Book(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) GetSession(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.View())
}

func (h *Handler) SetObservation(c echo.Context) error {
	var req observationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.svc.SetObservation(req.Observation); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, h.svc.View())
}

func (h *Handler) Leave(c echo.Context) error {
	if err := h.svc.Leave(c.Request().Context()); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CanExit(c echo.Context) error {
	ok, reason := h.svc.CanExit()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"can_exit": ok,
		"reason":   reason,
	})
}

func (h *Handler) ListCodes(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Codes())
}

// -- Documents --

func (h *Handler) Attach(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart form expected: "+err.Error())
	}
	files := form.File["files"]
	if len(files) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no files in field \"files\"")
	}

	uploads := make([]Upload, 0, len(files))
	for _, fh := range files {
		fh := fh
		uploads = append(uploads, Upload{
			Name:        fh.Filename,
			ContentType: fh.Header.Get(echo.HeaderContentType),
			Open:        func() (io.ReadCloser, error) { return fh.Open() },
		})
	}

	operator := auth.OperatorFromContext(c.Request().Context())
	res, err := h.svc.Attach(c.Request().Context(), operator, uploads)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListDocuments(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Documents())
}

func (h *Handler) ValidateDocuments(c echo.Context) error {
	invalid := h.svc.Validate()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"valid":   len(invalid) == 0,
		"invalid": invalid,
	})
}

func (h *Handler) SetTypeCode(c echo.Context) error {
	var req typeCodeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	code, err := h.svc.SetTypeCode(c.Param("id"), req.TypeCode)
	if err != nil {
		return toHTTPError(err)
	}
	tc, _ := documents.Lookup(code)
	return c.JSON(http.StatusOK, tc)
}

func (h *Handler) RemoveDocument(c echo.Context) error {
	if err := h.svc.Remove(c.Request().Context(), c.Param("id")); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Save --

type saveFailure struct {
	Outcome         string         `json:"outcome"`
	Error           string         `json:"error"`
	FailedIndex     int            `json:"failed_index"`
	Document        string         `json:"document"`
	RecordsAccepted int            `json:"records_accepted"`
	Result          *filing.Result `json:"result,omitempty"`
}

func (h *Handler) Save(c echo.Context) error {
	var req saveRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	operator := auth.OperatorFromContext(c.Request().Context())
	res, err := h.svc.Save(c.Request().Context(), operator, *req.Confirm)
	if err != nil {
		var rse *filing.RecordSubmissionError
		if errors.As(err, &rse) {
			return c.JSON(http.StatusBadGateway, saveFailure{
				Outcome:         string(filing.StateFailed),
				Error:           rse.Error(),
				FailedIndex:     rse.Index,
				Document:        rse.Document,
				RecordsAccepted: rse.Accepted,
				Result:          res,
			})
		}
		return toHTTPError(err)
	}

	if res.Outcome == filing.OutcomeValidationFailed {
		return c.JSON(http.StatusBadRequest, res)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) TakeFlash(c echo.Context) error {
	f, ok := h.svc.TakeFlash()
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, f)
}
