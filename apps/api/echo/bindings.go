package echoapi

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/darslik/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// paramID parses the int64 path param name; malformed IDs are not found.
func paramID(ctx echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errHttpNotFound
	}
	return id, nil
}

// ParseIDs parses a comma separated list of IDs, skipping the malformed ones.
func ParseIDs(csv string) []int64 {
	var ids []int64
	for _, s := range strings.Split(csv, ",") {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// IDsRequest holds the targets of a bulk action: `{"ids": [1, 2]}`.
type IDsRequest struct {
	IDs []int64 `json:"ids"`
}

func isJSONRequest(ctx echo.Context) bool {
	return strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
}

func isMultipartRequest(ctx echo.Context) bool {
	return strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

// bindJSONOrForm binds JSON bodies with ctx.Bind; form bodies are handed to fromForm.
func bindJSONOrForm(ctx echo.Context, i interface{}, fromForm func(get func(string) string) error) error {
	if isJSONRequest(ctx) {
		return ctx.Bind(i)
	}
	return fromForm(ctx.FormValue)
}

// formFiles returns the uploaded files of a multipart request, keyed by field name.
func formFiles(ctx echo.Context) map[string][]*multipart.FileHeader {
	if !isMultipartRequest(ctx) {
		return nil
	}
	form, err := ctx.MultipartForm()
	if err != nil {
		return nil
	}
	return form.File
}

func toUpload(fh *multipart.FileHeader) core.Upload {
	return core.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// formUpload returns the first file posted as field, nil if none.
func formUpload(ctx echo.Context, field string) *core.Upload {
	fhs := formFiles(ctx)[field]
	if len(fhs) == 0 {
		return nil
	}
	up := toUpload(fhs[0])
	return &up
}

func formUploads(files map[string][]*multipart.FileHeader, field string) []core.Upload {
	fhs := files[field]
	if len(fhs) == 0 {
		return nil
	}
	ups := make([]core.Upload, len(fhs))
	for i, fh := range fhs {
		ups[i] = toUpload(fh)
	}
	return ups
}

// formInt parses an optional integer form value.
func formInt(get func(string) string, field string) (*int, error) {
	s := strings.TrimSpace(get(field))
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, core.NewFieldError(field, "a valid integer is required")
	}
	return &n, nil
}

// formBool parses an optional boolean form value ("on" is true, like an HTML checkbox).
func formBool(get func(string) string, field string) *bool {
	s := strings.ToLower(strings.TrimSpace(get(field)))
	if s == "" {
		return nil
	}
	b := s == "on" || s == "1" || s == "true" || s == "yes"
	return &b
}

// formFlag reports whether field was posted. A posted flag is set unless it reads false, 0, off or no.
func formFlag(ctx echo.Context, field string) bool {
	params, err := ctx.FormParams()
	if err != nil {
		return false
	}
	vals, ok := params[field]
	if !ok {
		return false
	}
	if len(vals) == 0 {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(vals[0])) {
	case "false", "0", "off", "no":
		return false
	}
	return true
}

// saveUpload stores the upload posted as field, returning "" when there is none.
func saveUpload(ctx echo.Context, media core.MediaStorage, folder, field string) (string, error) {
	up := formUpload(ctx, field)
	if up == nil {
		return "", nil
	}
	rc, err := up.Open()
	if err != nil {
		return "", core.NewFieldError(field, "unreadable file")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer rc.Close()
	return media.Save(ctx.Request().Context(), folder, up.Filename, up.ContentType, rc)
}

// jsonField decodes the JSON document posted in the form field into i.
func jsonField(get func(string) string, field string, i interface{}) error {
	s := strings.TrimSpace(get(field))
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), i); err != nil {
		return core.NewFieldError(field, "malformed JSON document")
	}
	return nil
}

type SuccessResponse struct {
	Success string `json:"success"`
}
