package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/safedeal/internal/service"
)

type BalanceHandler struct {
	svc service.BalanceService
}

func NewBalanceHandler(svc service.BalanceService) *BalanceHandler {
	return &BalanceHandler{svc: svc}
}

type BalanceResponse struct {
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

// Get reports the funds released to the caller as a seller.
func (h *BalanceHandler) Get(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthenticated(c)
	}
	list, err := h.svc.List(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, err)
	}
	resp := make([]BalanceResponse, 0, len(list))
	for _, b := range list {
		resp = append(resp, BalanceResponse{Currency: b.Currency, Amount: b.Amount.StringFixed(2)})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"balances": resp})
}
