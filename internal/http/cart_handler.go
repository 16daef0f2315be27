package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sandbeige/storefront/internal/domain"
	"github.com/sandbeige/storefront/internal/identity"
	"github.com/sandbeige/storefront/internal/reconciler"
	"github.com/sandbeige/storefront/internal/totals"
)

const maxQuantity = 99

type CartHandler struct {
	sessions *Sessions
	timeout  time.Duration
	log      *slog.Logger
}

func NewCartHandler(sessions *Sessions, timeout time.Duration, logger *slog.Logger) *CartHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CartHandler{
		sessions: sessions,
		timeout:  timeout,
		log:      logger,
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type SignInRequestDTO struct {
	UserID string `json:"user_id"`
}

type CartItemDTO struct {
	ID           string `json:"id"`
	ProductID    string `json:"product_id"`
	Size         string `json:"size"`
	Quantity     int    `json:"quantity"`
	UnitPrice    string `json:"unit_price"`
	LineTotal    string `json:"line_total"`
	Name         string `json:"name"`
	Image        string `json:"image,omitempty"`
	CurrentPrice string `json:"current_price"`
}

type CartResponse struct {
	OwnerKind domain.OwnerKind `json:"owner_kind"`
	UserID    string           `json:"user_id,omitempty"`
	Items     []CartItemDTO    `json:"items"`
	Count     int              `json:"count"`
	Units     int              `json:"units"`
	Totals    totals.Rendered  `json:"totals"`
}

type ErrorResponse struct {
	Error   string        `json:"error"`
	Code    string        `json:"code,omitempty"`
	Details string        `json:"details,omitempty"`
	Cart    *CartResponse `json:"cart,omitempty"`
}

// cart returns the session's cart after applying the request's identity to it.
func (h *CartHandler) cart(ctx context.Context) (*reconciler.Reconciler, error) {
	rec := h.sessions.Get(ctx, getSessionID(ctx))
	return rec, rec.Apply(ctx, getIdentity(ctx))
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rec, err := h.cart(ctx)
	if err != nil {
		h.handleError(w, r, err, rec)
		return
	}
	if err := rec.Refresh(ctx); err != nil {
		h.log.WarnContext(ctx, "cart refresh failed, serving last known cart", "request_id", getRequestID(ctx), "error", err)
	}

	respondJSON(w, http.StatusOK, cartResponse(rec))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	// Parse request body
	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	// Validate request
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	if req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	rec, err := h.cart(ctx)
	if err != nil {
		h.handleError(w, r, err, rec)
		return
	}
	if _, err := rec.Add(ctx, req.ProductID, req.Size, req.Quantity); err != nil {
		h.handleError(w, r, err, rec)
		return
	}

	respondJSON(w, http.StatusCreated, cartResponse(rec))
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	itemID := chi.URLParam(r, "item_id")

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	rec, err := h.cart(ctx)
	if err != nil {
		h.handleError(w, r, err, rec)
		return
	}
	if _, err := rec.UpdateQuantity(ctx, itemID, req.Quantity); err != nil {
		h.handleError(w, r, err, rec)
		return
	}

	respondJSON(w, http.StatusOK, cartResponse(rec))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rec, err := h.cart(ctx)
	if err != nil {
		h.handleError(w, r, err, rec)
		return
	}
	if err := rec.Remove(ctx, chi.URLParam(r, "item_id")); err != nil {
		h.handleError(w, r, err, rec)
		return
	}

	respondJSON(w, http.StatusOK, cartResponse(rec))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rec, err := h.cart(ctx)
	if err != nil {
		h.handleError(w, r, err, rec)
		return
	}
	if err := rec.Clear(ctx); err != nil {
		h.handleError(w, r, err, rec)
		return
	}

	respondJSON(w, http.StatusOK, cartResponse(rec))
}

func (h *CartHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SignInRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}

	rec := h.sessions.Get(ctx, getSessionID(ctx))
	if err := rec.Apply(ctx, identity.SignedIn(req.UserID)); err != nil {
		h.handleError(w, r, err, rec)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     userCookie,
		Value:    req.UserID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, http.StatusOK, cartResponse(rec))
}

func (h *CartHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rec := h.sessions.Get(ctx, getSessionID(ctx))
	if err := rec.Apply(ctx, identity.SignedOut()); err != nil {
		h.handleError(w, r, err, rec)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     userCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	respondJSON(w, http.StatusOK, cartResponse(rec))
}

func cartResponse(rec *reconciler.Reconciler) *CartResponse {
	cart := rec.Snapshot()
	items := make([]CartItemDTO, len(cart.Items))
	for i, item := range cart.Items {
		items[i] = CartItemDTO{
			ID:           item.ID,
			ProductID:    item.ProductID,
			Size:         item.Variant,
			Quantity:     item.Quantity,
			UnitPrice:    totals.Format(item.UnitPrice),
			LineTotal:    totals.Format(totals.LineTotal(item)),
			Name:         item.Snapshot.Name,
			Image:        item.Snapshot.Image,
			CurrentPrice: totals.Format(item.Snapshot.CurrentPrice),
		}
	}
	return &CartResponse{
		OwnerKind: cart.OwnerKind,
		UserID:    cart.UserID,
		Items:     items,
		Count:     cart.Count(),
		Units:     cart.Units(),
		Totals:    totals.Calculate(cart.Items, rec.TotalsConfig()).Render(),
	}
}

// handleError maps cart errors to HTTP status codes. Remote failures keep the
// optimistic cart, so it is returned with the error.
func (h *CartHandler) handleError(w http.ResponseWriter, r *http.Request, err error, rec *reconciler.Reconciler) {
	var httpStatus int
	var code string

	switch {
	case errors.Is(err, domain.ErrInvalidQuantity):
		httpStatus, code = http.StatusBadRequest, "invalid_quantity"
	case errors.Is(err, domain.ErrVariantRequired):
		httpStatus, code = http.StatusBadRequest, "size_required"
	case errors.Is(err, domain.ErrItemNotFound):
		httpStatus, code = http.StatusNotFound, "item_not_found"
	case errors.Is(err, domain.ErrProductNotFound):
		httpStatus, code = http.StatusNotFound, "product_not_found"
	case errors.Is(err, domain.ErrOutOfStock):
		httpStatus, code = http.StatusConflict, "out_of_stock"
	case errors.Is(err, domain.ErrRemoteUnavailable):
		httpStatus, code = http.StatusServiceUnavailable, "service_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		httpStatus, code = http.StatusGatewayTimeout, "timeout"
	default:
		httpStatus, code = http.StatusInternalServerError, "internal_error"
	}

	if httpStatus >= http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "cart request failed", "request_id", getRequestID(r.Context()), "code", code, "error", err)
	}

	resp := ErrorResponse{Error: err.Error(), Code: code}
	if httpStatus == http.StatusServiceUnavailable && rec != nil {
		resp.Cart = cartResponse(rec)
	}
	respondJSON(w, httpStatus, resp)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
