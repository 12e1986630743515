package imaging

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/images", h.Upload)
	api.GET("/images/:id", h.GetImage)
	api.GET("/images/:id/content", h.GetContent)
	api.DELETE("/images/:id", h.DeleteImage)
	api.POST("/images/:id/prediction", h.PredictImage)
	api.GET("/patients/:id/images", h.ListByPatient)
	api.GET("/patients/:id/prediction", h.PredictLatest)
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// uploadPatientID reads the target patient from either a "patient_id" form
// field or a "patient" part holding a JSON object with an "id".
func uploadPatientID(c echo.Context) (int64, error) {
	if raw := strings.TrimSpace(c.FormValue("patient_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		return id, nil
	}
	if raw := strings.TrimSpace(c.FormValue("patient")); raw != "" {
		var ref struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal([]byte(raw), &ref); err != nil || ref.ID <= 0 {
			return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid patient part")
		}
		return ref.ID, nil
	}
	return 0, echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
}

// uploadResponse renders the confirmation body clients match on verbatim.
func uploadResponse(filename string) []byte {
	msg, _ := json.Marshal("file uploaded successfully : " + filename)
	return []byte(`{"response" : ` + string(msg) + `}`)
}

func (h *Handler) Upload(c echo.Context) error {
	file, err := c.FormFile("image")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "image file is required")
	}
	patientID, err := uploadPatientID(c)
	if err != nil {
		return err
	}

	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to open uploaded file")
	}
	defer src.Close()

	img, err := h.svc.Ingest(c.Request().Context(), UploadInput{
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		PatientID:   patientID,
		Body:        src,
	})
	if err != nil {
		return err
	}
	return c.JSONBlob(http.StatusCreated, uploadResponse(img.Filename))
}

func (h *Handler) GetImage(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	img, err := h.svc.GetImage(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, img)
}

func (h *Handler) GetContent(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rc, img, err := h.svc.OpenContent(c.Request().Context(), id)
	if err != nil {
		return err
	}
	defer rc.Close()

	c.Response().Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", img.Filename))
	return c.Stream(http.StatusOK, img.ContentType, rc)
}

func (h *Handler) DeleteImage(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteImage(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	images, err := h.svc.ListByPatient(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, images)
}

func (h *Handler) PredictImage(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	res, err := h.svc.Predict(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.String(http.StatusOK, res.Label.Text())
}

func (h *Handler) PredictLatest(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	res, err := h.svc.PredictLatest(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.String(http.StatusOK, res.Label.Text())
}
