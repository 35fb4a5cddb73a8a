package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	carterrors "github.com/abgdnv/gomarketplace/internal/errors"
	"github.com/abgdnv/gomarketplace/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// mockCartService is a mock implementation of the CartService interface
type mockCartService struct {
	cart    service.CartDto
	error   error
	ready   bool
	lastID  string
	lastDto service.ProductDto
}

func (m *mockCartService) Get(_ context.Context) (*service.CartDto, error) {
	if m.error != nil {
		return nil, m.error
	}
	return &m.cart, nil
}

func (m *mockCartService) Add(_ context.Context, product service.ProductDto) (*service.CartDto, error) {
	m.lastDto = product
	return m.result()
}

func (m *mockCartService) Increment(_ context.Context, id string) (*service.CartDto, error) {
	m.lastID = id
	return m.result()
}

func (m *mockCartService) Decrement(_ context.Context, id string) (*service.CartDto, error) {
	m.lastID = id
	return m.result()
}

func (m *mockCartService) Sync(_ context.Context) (*service.CartDto, error) {
	return m.result()
}

func (m *mockCartService) Ready() bool {
	return m.ready
}

func (m *mockCartService) result() (*service.CartDto, error) {
	if m.error != nil {
		return nil, m.error
	}
	return &m.cart, nil
}

func newRouter(svc service.CartService) http.Handler {
	r := chi.NewRouter()
	Routes(r, NewAPI(svc, slog.Default()))
	return r
}

var oneShirt = service.CartDto{
	Items:         []service.LineItemDto{{ID: "1", Title: "Shirt", ImageURL: "http://img/1", Price: 10, Quantity: 2, Subtotal: 20}},
	TotalQuantity: 2,
	TotalPrice:    20,
	Revision:      4,
	Version:       "s1-4",
}

const oneShirtJSON = `{"items":[{"id":"1","title":"Shirt","image_url":"http://img/1","price":10,"quantity":2,"subtotal":20}],"total_quantity":2,"total_price":20,"revision":4,"version":"s1-4"}`

func Test_CartAPI_Get(t *testing.T) {
	testCases := []struct {
		name         string
		mockService  *mockCartService
		ifNoneMatch  string
		expectedCode int
		expectedBody string
	}{
		{
			name:         "Success - cart returned",
			mockService:  &mockCartService{cart: oneShirt},
			expectedCode: http.StatusOK,
			expectedBody: oneShirtJSON,
		},
		{
			name:         "Success - not modified",
			mockService:  &mockCartService{cart: oneShirt},
			ifNoneMatch:  `"s1-4"`,
			expectedCode: http.StatusNotModified,
		},
		{
			name:         "Success - stale etag",
			mockService:  &mockCartService{cart: oneShirt},
			ifNoneMatch:  `"s1-3"`,
			expectedCode: http.StatusOK,
			expectedBody: oneShirtJSON,
		},
		{
			name:         "Success - same revision of an earlier session",
			mockService:  &mockCartService{cart: oneShirt},
			ifNoneMatch:  `"s0-4"`,
			expectedCode: http.StatusOK,
			expectedBody: oneShirtJSON,
		},
		{
			name:         "Error - service error",
			mockService:  &mockCartService{error: errors.New("boom")},
			expectedCode: http.StatusInternalServerError,
			expectedBody: `{"error":"Failed to retrieve cart"}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
			if tc.ifNoneMatch != "" {
				req.Header.Set("If-None-Match", tc.ifNoneMatch)
			}
			rr := httptest.NewRecorder()
			// when
			newRouter(tc.mockService).ServeHTTP(rr, req)
			// then
			assert.Equal(t, tc.expectedCode, rr.Code, "status code should match")
			if tc.expectedBody == "" {
				assert.Empty(t, rr.Body.String())
				return
			}
			assert.JSONEq(t, tc.expectedBody, rr.Body.String(), "response body should match")
			if tc.expectedCode == http.StatusOK {
				assert.Equal(t, `"s1-4"`, rr.Header().Get("ETag"))
			}
		})
	}
}

func Test_CartAPI_Add(t *testing.T) {
	testCases := []struct {
		name         string
		mockService  *mockCartService
		requestBody  string
		expectedCode int
		expectedBody string
	}{
		{
			name:         "Success - product added",
			mockService:  &mockCartService{cart: oneShirt},
			requestBody:  `{"id":"1","title":"Shirt","image_url":"http://img/1","price":10}`,
			expectedCode: http.StatusOK,
			expectedBody: oneShirtJSON,
		},
		{
			name:         "Success - title, price and image are not checked",
			mockService:  &mockCartService{cart: oneShirt},
			requestBody:  `{"id":"1","title":"","image_url":"shirt.png","price":-1}`,
			expectedCode: http.StatusOK,
			expectedBody: oneShirtJSON,
		},
		{
			name:         "Error - validation failed",
			mockService:  &mockCartService{},
			requestBody:  `{"id":"","title":"","image_url":"not a url","price":-1}`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"validation_errors":{"ID":"failed on rule: required"}}`,
		},
		{
			name:         "Error - invalid json",
			mockService:  &mockCartService{},
			requestBody:  `{"id":`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"error":"Invalid request body"}`,
		},
		{
			name:         "Error - persistence failure",
			mockService:  &mockCartService{error: fmt.Errorf("failed to add cart: %w", carterrors.ErrPersistence)},
			requestBody:  `{"id":"1","title":"Shirt","price":10}`,
			expectedCode: http.StatusServiceUnavailable,
			expectedBody: `{"error":"Cart could not be saved, retry with sync"}`,
		},
		{
			name:         "Error - service error",
			mockService:  &mockCartService{error: errors.New("service unavailable")},
			requestBody:  `{"id":"1","title":"Shirt","price":10}`,
			expectedCode: http.StatusInternalServerError,
			expectedBody: `{"error":"Failed to update cart"}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(tc.requestBody))
			rr := httptest.NewRecorder()
			// when
			newRouter(tc.mockService).ServeHTTP(rr, req)
			// then
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			assert.Equal(t, tc.expectedCode, rr.Code, "status code should match")
			assert.JSONEq(t, tc.expectedBody, rr.Body.String(), "response body should match")
		})
	}
}

func Test_CartAPI_IncrementDecrement(t *testing.T) {
	testCases := []struct {
		name         string
		mockService  *mockCartService
		path         string
		expectedCode int
		expectedBody string
	}{
		{
			name:         "Success - increment",
			mockService:  &mockCartService{cart: oneShirt},
			path:         "/api/v1/cart/items/1/increment",
			expectedCode: http.StatusOK,
			expectedBody: oneShirtJSON,
		},
		{
			name:         "Success - decrement",
			mockService:  &mockCartService{cart: oneShirt},
			path:         "/api/v1/cart/items/1/decrement",
			expectedCode: http.StatusOK,
			expectedBody: oneShirtJSON,
		},
		{
			name:         "Error - store closed",
			mockService:  &mockCartService{error: carterrors.ErrStoreClosed},
			path:         "/api/v1/cart/items/1/increment",
			expectedCode: http.StatusServiceUnavailable,
			expectedBody: `{"error":"Cart is not available"}`,
		},
		{
			name:         "Error - invalid id",
			mockService:  &mockCartService{error: carterrors.ErrInvalidItemID},
			path:         "/api/v1/cart/items/1/decrement",
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"error":"item id must not be empty"}`,
		},
		{
			name:         "Error - request abandoned",
			mockService:  &mockCartService{error: context.DeadlineExceeded},
			path:         "/api/v1/cart/items/1/decrement",
			expectedCode: http.StatusServiceUnavailable,
			expectedBody: `{"error":"Cart is busy"}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			req := httptest.NewRequest(http.MethodPost, tc.path, nil)
			rr := httptest.NewRecorder()
			// when
			newRouter(tc.mockService).ServeHTTP(rr, req)
			// then
			assert.Equal(t, tc.expectedCode, rr.Code, "status code should match")
			assert.JSONEq(t, tc.expectedBody, rr.Body.String(), "response body should match")
			assert.Equal(t, "1", tc.mockService.lastID)
		})
	}
}

func Test_CartAPI_Sync(t *testing.T) {
	// given
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/sync", nil)
	rr := httptest.NewRecorder()
	// when
	newRouter(&mockCartService{cart: oneShirt}).ServeHTTP(rr, req)
	// then
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `"s1-4"`, rr.Header().Get("ETag"))
	assert.JSONEq(t, oneShirtJSON, rr.Body.String())
}

func Test_CartAPI_Probes(t *testing.T) {
	testCases := []struct {
		name         string
		path         string
		ready        bool
		expectedCode int
	}{
		{name: "healthz", path: "/healthz", expectedCode: http.StatusOK},
		{name: "readyz before load", path: "/readyz", expectedCode: http.StatusServiceUnavailable},
		{name: "readyz after load", path: "/readyz", ready: true, expectedCode: http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			rr := httptest.NewRecorder()
			// when
			newRouter(&mockCartService{ready: tc.ready}).ServeHTTP(rr, req)
			// then
			assert.Equal(t, tc.expectedCode, rr.Code)
		})
	}
}
