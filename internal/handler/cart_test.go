package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"commerce-core/internal/model"

	"github.com/labstack/echo/v4"
)

// stubCartService lets tests force the reload after a mutation to fail.
type stubCartService struct {
	cart      *model.Cart
	reloadErr error
}

func (s *stubCartService) GetOrCreateCart(context.Context, string, *string, *string) (*model.Cart, error) {
	return s.cart, nil
}

func (s *stubCartService) GetCart(context.Context, string, string) (*model.Cart, []*model.CartItem, error) {
	if s.reloadErr != nil {
		return nil, nil, s.reloadErr
	}
	return s.cart, nil, nil
}

func (s *stubCartService) AddItem(context.Context, string, string, string, string, int) (*model.Cart, error) {
	return s.cart, nil
}

func (s *stubCartService) UpdateItem(context.Context, string, string, string, string, int) (*model.Cart, error) {
	return s.cart, nil
}

func (s *stubCartService) RemoveItem(context.Context, string, string, string, string) (*model.Cart, error) {
	return s.cart, nil
}

func (s *stubCartService) ApplyCoupon(context.Context, string, string, string) (*model.Cart, error) {
	return s.cart, nil
}

func (s *stubCartService) RemoveCoupon(context.Context, string, string) (*model.Cart, error) {
	return s.cart, nil
}

func (s *stubCartService) MergeCarts(context.Context, string, string, string) (*model.Cart, error) {
	return s.cart, nil
}

func TestMutationPropagatesReloadError(t *testing.T) {
	reloadErr := errors.New("reload failed")
	h := NewCartHandler(&stubCartService{
		cart:      &model.Cart{ID: "cart-1", Status: model.CartStatusActive},
		reloadErr: reloadErr,
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/",
		strings.NewReader(`{"product_id":"p1","quantity":1}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("cartID")
	c.SetParamValues("cart-1")

	// the mutation succeeds, the reload does not; the handler must surface
	// the error instead of answering 200 with an empty item list
	err := h.AddItem(c)
	if !errors.Is(err, reloadErr) {
		t.Errorf("AddItem error = %v, want the reload error", err)
	}
}
