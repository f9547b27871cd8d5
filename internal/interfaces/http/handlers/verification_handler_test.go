package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"verifyflow.backend/internal/domain/entities"
	domainerrors "verifyflow.backend/internal/domain/errors"
	"verifyflow.backend/internal/interfaces/http/middleware"
	"verifyflow.backend/internal/usecases"
)

type verificationServiceMock struct {
	mock.Mock
}

func (m *verificationServiceMock) CreateRequest(ctx context.Context, input *usecases.CreateRequestInput) (*entities.VerificationRequest, bool, error) {
	args := m.Called(ctx, input)
	req, _ := args.Get(0).(*entities.VerificationRequest)
	return req, args.Bool(1), args.Error(2)
}

func (m *verificationServiceMock) GetCurrent(ctx context.Context, customerID uuid.UUID) (*entities.VerificationRequest, error) {
	args := m.Called(ctx, customerID)
	req, _ := args.Get(0).(*entities.VerificationRequest)
	return req, args.Error(1)
}

func (m *verificationServiceMock) GetRequest(ctx context.Context, customerID, requestID uuid.UUID) (*entities.VerificationRequest, error) {
	args := m.Called(ctx, customerID, requestID)
	req, _ := args.Get(0).(*entities.VerificationRequest)
	return req, args.Error(1)
}

func (m *verificationServiceMock) UploadDocument(ctx context.Context, input *usecases.UploadDocumentInput) (*entities.VerificationDocument, error) {
	args := m.Called(ctx, input)
	doc, _ := args.Get(0).(*entities.VerificationDocument)
	return doc, args.Error(1)
}

// asSubject stands in for AuthMiddleware
func asSubject(id uuid.UUID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.SubjectIDKey, id)
		c.Set(middleware.RoleKey, role)
		c.Next()
	}
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func newVerificationRouter(svc verificationService, customerID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := &VerificationHandler{service: svc}
	g := r.Group("/api/v1/verifications", asSubject(customerID, "customer"))
	g.POST("", h.CreateVerification)
	g.GET("/current", h.GetCurrentVerification)
	g.GET("/:id", h.GetVerification)
	g.POST("/:id/documents", h.UploadDocument)
	return r
}

func TestVerificationHandler_Create(t *testing.T) {
	customerID := uuid.New()

	t.Run("created", func(t *testing.T) {
		svc := &verificationServiceMock{}
		req := &entities.VerificationRequest{ID: uuid.New(), CustomerID: customerID, Status: entities.RequestStatusPending}
		svc.On("CreateRequest", mock.Anything, mock.MatchedBy(func(in *usecases.CreateRequestInput) bool {
			return in.CustomerID == customerID &&
				in.CustomerType == entities.CustomerTypeIndividual &&
				in.FirstName == "Ada" &&
				in.UserAgent == "test-agent"
		})).Return(req, true, nil)

		body := `{"customerType":"individual","firstName":"Ada","lastName":"Obi","state":"Lagos"}`
		httpReq := httptest.NewRequest(http.MethodPost, "/api/v1/verifications", strings.NewReader(body))
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("User-Agent", "test-agent")
		w := httptest.NewRecorder()
		newVerificationRouter(svc, customerID).ServeHTTP(w, httpReq)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, true, decodeBody(t, w)["created"])
		svc.AssertExpectations(t)
	})

	t.Run("existing request returns 200", func(t *testing.T) {
		svc := &verificationServiceMock{}
		svc.On("CreateRequest", mock.Anything, mock.Anything).
			Return(&entities.VerificationRequest{ID: uuid.New()}, false, nil)

		body := `{"customerType":"individual","firstName":"Ada","lastName":"Obi"}`
		httpReq := httptest.NewRequest(http.MethodPost, "/api/v1/verifications", strings.NewReader(body))
		httpReq.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		newVerificationRouter(svc, customerID).ServeHTTP(w, httpReq)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, false, decodeBody(t, w)["created"])
	})

	t.Run("missing fields", func(t *testing.T) {
		svc := &verificationServiceMock{}
		httpReq := httptest.NewRequest(http.MethodPost, "/api/v1/verifications", strings.NewReader(`{"firstName":"Ada"}`))
		httpReq.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		newVerificationRouter(svc, customerID).ServeHTTP(w, httpReq)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "CreateRequest", mock.Anything, mock.Anything)
	})

	t.Run("no subject", func(t *testing.T) {
		gin.SetMode(gin.TestMode)
		r := gin.New()
		h := &VerificationHandler{service: &verificationServiceMock{}}
		r.POST("/api/v1/verifications", h.CreateVerification)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/verifications", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestVerificationHandler_Get(t *testing.T) {
	customerID := uuid.New()
	requestID := uuid.New()

	svc := &verificationServiceMock{}
	svc.On("GetCurrent", mock.Anything, customerID).Return(&entities.VerificationRequest{ID: requestID}, nil)
	svc.On("GetRequest", mock.Anything, customerID, requestID).Return(nil, domainerrors.ErrForbidden)
	r := newVerificationRouter(svc, customerID)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/verifications/current", nil))
	require.Equal(t, http.StatusOK, w.Code)
	verification := decodeBody(t, w)["verification"].(map[string]any)
	assert.Equal(t, requestID.String(), verification["id"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/verifications/"+requestID.String(), nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/verifications/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func multipartUpload(t *testing.T, fields map[string]string, withFile bool) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if withFile {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="file"; filename="scan.png"`)
		header.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write([]byte("\x89PNG fake image"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func TestVerificationHandler_UploadDocument(t *testing.T) {
	customerID := uuid.New()
	requestID := uuid.New()
	path := "/api/v1/verifications/" + requestID.String() + "/documents"

	t.Run("success", func(t *testing.T) {
		svc := &verificationServiceMock{}
		var fileBody []byte
		svc.On("UploadDocument", mock.Anything, mock.MatchedBy(func(in *usecases.UploadDocumentInput) bool {
			return in.RequestID == requestID &&
				in.DocumentType == entities.DocumentTypeNIN &&
				in.DocumentNumber == "12345678901" &&
				in.ContentType == "image/png" &&
				in.FileName == "scan.png"
		})).Run(func(args mock.Arguments) {
			in := args.Get(1).(*usecases.UploadDocumentInput)
			fileBody, _ = io.ReadAll(in.File)
		}).Return(&entities.VerificationDocument{ID: uuid.New(), Status: entities.DocumentStatusPending}, nil)

		body, contentType := multipartUpload(t, map[string]string{
			"document_type":   "nin",
			"document_number": "12345678901",
		}, true)
		req := httptest.NewRequest(http.MethodPost, path, body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		newVerificationRouter(svc, customerID).ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "\x89PNG fake image", string(fileBody))
		assert.NotContains(t, w.Body.String(), "12345678901")
		svc.AssertExpectations(t)
	})

	t.Run("missing file", func(t *testing.T) {
		svc := &verificationServiceMock{}
		body, contentType := multipartUpload(t, map[string]string{"document_type": "nin"}, false)
		req := httptest.NewRequest(http.MethodPost, path, body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		newVerificationRouter(svc, customerID).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "UploadDocument", mock.Anything, mock.Anything)
	})

	t.Run("duplicate type maps to conflict", func(t *testing.T) {
		svc := &verificationServiceMock{}
		svc.On("UploadDocument", mock.Anything, mock.Anything).Return(nil, domainerrors.ErrDuplicateDocument)

		body, contentType := multipartUpload(t, map[string]string{"document_type": "nin", "document_number": "12345678901"}, true)
		req := httptest.NewRequest(http.MethodPost, path, body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		newVerificationRouter(svc, customerID).ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, domainerrors.CodeDuplicateDocument, decodeBody(t, w)["code"])
	})
}
