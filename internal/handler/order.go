package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/elearning-backend/internal/model"
	"github.com/iliyamo/elearning-backend/internal/service"
)

// Orders records purchases.
type Orders interface {
	CreateOrder(ctx context.Context, userID uint64, in service.OrderInput) (model.Order, error)
}

type OrderHandler struct {
	orders Orders
}

func NewOrderHandler(orders Orders) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// CreateOrder handles POST /create-order.
func (h *OrderHandler) CreateOrder(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	var in service.OrderInput
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	order, err := h.orders.CreateOrder(ctx, u.ID, in)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, echo.Map{"order": order})
}
