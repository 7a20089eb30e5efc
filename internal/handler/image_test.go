package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/DukeRupert/adcraft/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newImageMux(svc *mockImageService) *http.ServeMux {
	mux := http.NewServeMux()
	NewImageHandler(svc, newTestLogger()).RegisterRoutes(mux, passthrough)
	return mux
}

func multipartRequest(t *testing.T, field, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/images", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadImage(t *testing.T) {
	user := newTestUser()
	payload := []byte("\x89PNG fake bytes")
	svc := &mockImageService{
		UploadFunc: func(ctx context.Context, params domain.UploadImageParams, data io.Reader) (*domain.Image, error) {
			assert.Equal(t, user.ID, params.UserID)
			assert.Equal(t, "mug.png", params.OriginalFilename)
			assert.Equal(t, "image/png", params.ContentType)
			assert.EqualValues(t, len(payload), params.SizeBytes)
			got, err := io.ReadAll(data)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
			return &domain.Image{ID: uuid.New(), UserID: user.ID, OriginalFilename: params.OriginalFilename}, nil
		},
	}

	rec := serve(newImageMux(svc), withUser(multipartRequest(t, "file", "mug.png", "image/png", payload), user))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var img domain.Image
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &img))
	assert.Equal(t, "mug.png", img.OriginalFilename)
}

func TestUploadImage_MissingFile(t *testing.T) {
	rec := serve(newImageMux(&mockImageService{}), withUser(multipartRequest(t, "", "", "", nil), newTestUser()))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Fields, "file")
}

func TestUploadImage_NotMultipart(t *testing.T) {
	req := withUser(jsonRequest(t, http.MethodPost, "/api/images", `{"file":"x"}`), newTestUser())
	rec := serve(newImageMux(&mockImageService{}), req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.EINVALID, decodeError(t, rec).Code)
}

func TestUploadImage_TooLarge(t *testing.T) {
	big := bytes.Repeat([]byte{0xFF}, maxUploadBody+1)
	rec := serve(newImageMux(&mockImageService{}), withUser(multipartRequest(t, "file", "huge.jpg", "image/jpeg", big), newTestUser()))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, domain.ETOOLARGE, decodeError(t, rec).Code)
}

func TestUploadImage_ServiceRejects(t *testing.T) {
	svc := &mockImageService{
		UploadFunc: func(ctx context.Context, params domain.UploadImageParams, data io.Reader) (*domain.Image, error) {
			return nil, domain.Invalid("image.upload", "Unsupported image type")
		},
	}

	rec := serve(newImageMux(svc), withUser(multipartRequest(t, "file", "doc.pdf", "application/pdf", []byte("%PDF")), newTestUser()))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unsupported image type", decodeError(t, rec).Message)
}

func TestListImages(t *testing.T) {
	user := newTestUser()
	svc := &mockImageService{
		ListByUserFunc: func(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Image, error) {
			assert.Equal(t, user.ID, userID)
			assert.Equal(t, 2, limit)
			return []domain.Image{{ID: uuid.New()}, {ID: uuid.New()}}, nil
		},
	}

	rec := serve(newImageMux(svc), withUser(jsonRequest(t, http.MethodGet, "/api/images?limit=2", nil), user))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Images []domain.Image `json:"images"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Images, 2)
}

func TestGetImage_OtherUser(t *testing.T) {
	svc := &mockImageService{
		GetByIDFunc: func(ctx context.Context, imageID, userID uuid.UUID) (*domain.Image, error) {
			return nil, domain.NotFound("image.get", "image", imageID.String())
		},
	}

	rec := serve(newImageMux(svc), withUser(jsonRequest(t, http.MethodGet, "/api/images/"+uuid.NewString(), nil), newTestUser()))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
