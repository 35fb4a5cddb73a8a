// Package rest provides HTTP handlers for the cart API.
package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	carterrors "github.com/abgdnv/gomarketplace/internal/errors"
	"github.com/abgdnv/gomarketplace/internal/service"
	"github.com/abgdnv/gomarketplace/pkg/web"
	"github.com/go-playground/validator/v10"
)

// CartAPI defines HTTP handlers for cart endpoints.
type CartAPI interface {
	Get(w http.ResponseWriter, r *http.Request)
	Add(w http.ResponseWriter, r *http.Request)
	Increment(w http.ResponseWriter, r *http.Request)
	Decrement(w http.ResponseWriter, r *http.Request)
	Sync(w http.ResponseWriter, r *http.Request)

	HealthCheck(w http.ResponseWriter, r *http.Request)
	ReadyCheck(w http.ResponseWriter, r *http.Request)
}

type api struct {
	service  service.CartService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewAPI creates a new instance of CartAPI with the provided service.
func NewAPI(service service.CartService, logger *slog.Logger) CartAPI {
	return &api{
		service:  service,
		validate: validator.New(),
		logger:   logger.With("component", "api"),
	}
}

// Get returns the cart. The ETag header carries the cart version.
func (a *api) Get(w http.ResponseWriter, r *http.Request) {
	found, err := a.service.Get(r.Context())
	if err != nil {
		a.logger.ErrorContext(r.Context(), "Error retrieving cart", "error", err)
		web.RespondError(w, a.logger, http.StatusInternalServerError, "Failed to retrieve cart")
		return
	}
	etag := versionTag(found.Version)
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	web.RespondJSON(w, a.logger, http.StatusOK, found)
}

// Add puts a product into the cart.
func (a *api) Add(w http.ResponseWriter, r *http.Request) {
	var product service.ProductDto
	if !web.DecodeAndValidate(w, r, a.logger, a.validate, &product) {
		return
	}
	a.logger.DebugContext(r.Context(), "Received request to add product", "ID", product.ID)
	a.mutate(w, r, "add", func(ctx context.Context) (*service.CartDto, error) {
		return a.service.Add(ctx, product)
	})
}

func (a *api) Increment(w http.ResponseWriter, r *http.Request) {
	id, ok := web.PathParam(w, r, a.logger, "id")
	if !ok {
		return
	}
	a.mutate(w, r, "increment", func(ctx context.Context) (*service.CartDto, error) {
		return a.service.Increment(ctx, id)
	})
}

func (a *api) Decrement(w http.ResponseWriter, r *http.Request) {
	id, ok := web.PathParam(w, r, a.logger, "id")
	if !ok {
		return
	}
	a.mutate(w, r, "decrement", func(ctx context.Context) (*service.CartDto, error) {
		return a.service.Decrement(ctx, id)
	})
}

// Sync writes the cart to storage again.
func (a *api) Sync(w http.ResponseWriter, r *http.Request) {
	a.mutate(w, r, "sync", a.service.Sync)
}

// HealthCheck is a simple health check endpoint.
func (a *api) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// ReadyCheck reports 200 once the cart has been loaded from storage.
func (a *api) ReadyCheck(w http.ResponseWriter, _ *http.Request) {
	if !a.service.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *api) mutate(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context) (*service.CartDto, error)) {
	updated, err := fn(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, carterrors.ErrInvalidItemID):
			web.RespondError(w, a.logger, http.StatusBadRequest, err.Error())
		case errors.Is(err, carterrors.ErrPersistence):
			a.logger.ErrorContext(r.Context(), "Cart changed but was not saved", "op", op, "error", err)
			web.RespondError(w, a.logger, http.StatusServiceUnavailable, "Cart could not be saved, retry with sync")
		case errors.Is(err, carterrors.ErrStoreClosed):
			a.logger.WarnContext(r.Context(), "Cart is shutting down", "op", op)
			web.RespondError(w, a.logger, http.StatusServiceUnavailable, "Cart is not available")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			a.logger.WarnContext(r.Context(), "Cart request abandoned", "op", op, "error", err)
			web.RespondError(w, a.logger, http.StatusServiceUnavailable, "Cart is busy")
		default:
			a.logger.ErrorContext(r.Context(), "Error updating cart", "op", op, "error", err)
			web.RespondError(w, a.logger, http.StatusInternalServerError, "Failed to update cart")
		}
		return
	}
	a.logger.InfoContext(r.Context(), "Cart updated", "op", op, "revision", updated.Revision)
	w.Header().Set("ETag", versionTag(updated.Version))
	web.RespondJSON(w, a.logger, http.StatusOK, updated)
}

func versionTag(version string) string {
	return strconv.Quote(version)
}
