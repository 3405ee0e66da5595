package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/safedeal/internal/model"
	"github.com/shinyyama/safedeal/internal/service"
	"github.com/shopspring/decimal"
)

type DealHandler struct {
	market *service.Marketplace
}

func NewDealHandler(market *service.Marketplace) *DealHandler {
	return &DealHandler{market: market}
}

type InitiateDealRequest struct {
	ListingID string          `json:"listing_id" validate:"required,max=128"`
	SellerID  string          `json:"seller_id" validate:"required,max=128"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency" validate:"omitempty,len=3,alpha"`
}

// TransitionRequest names the target status. Only the fields of that
// transition are read.
type TransitionRequest struct {
	Status         string `json:"status" validate:"required,oneof=shipped completed disputed cancelled"`
	ShippingNumber string `json:"shipping_number" validate:"max=128"`
	DispatchNote   string `json:"dispatch_note" validate:"max=1000"`
	DisputeReason  string `json:"dispute_reason" validate:"max=2000"`
}

func (r TransitionRequest) transition() service.Transition {
	switch model.DealStatus(r.Status) {
	case model.DealStatusShipped:
		return service.Ship{ShippingNumber: r.ShippingNumber, DispatchNote: r.DispatchNote}
	case model.DealStatusCompleted:
		return service.Complete{}
	case model.DealStatusDisputed:
		return service.Dispute{Reason: r.DisputeReason}
	case model.DealStatusCancelled:
		return service.Cancel{}
	}
	return nil
}

type DealResponse struct {
	ID              string  `json:"id"`
	ListingID       string  `json:"listing_id"`
	BuyerID         string  `json:"buyer_id"`
	SellerID        string  `json:"seller_id"`
	Amount          string  `json:"amount"`
	Currency        string  `json:"currency"`
	Status          string  `json:"status"`
	ShippingNumber  string  `json:"shipping_number,omitempty"`
	DispatchNote    string  `json:"dispatch_note,omitempty"`
	DisputeReason   string  `json:"dispute_reason,omitempty"`
	CancelReason    string  `json:"cancel_reason,omitempty"`
	ExpiresAt       string  `json:"expires_at"`
	ShippedAt       *string `json:"shipped_at,omitempty"`
	CompletedAt     *string `json:"completed_at,omitempty"`
	DisputedAt      *string `json:"disputed_at,omitempty"`
	CancelledAt     *string `json:"cancelled_at,omitempty"`
	FundsReleasedAt *string `json:"funds_released_at,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

func toDealResponse(d model.SafeDeal) DealResponse {
	return DealResponse{
		ID:              d.ID,
		ListingID:       d.ListingID,
		BuyerID:         d.BuyerID,
		SellerID:        d.SellerID,
		Amount:          d.Amount.StringFixed(2),
		Currency:        d.Currency,
		Status:          string(d.Status),
		ShippingNumber:  d.ShippingNumber,
		DispatchNote:    d.DispatchNote,
		DisputeReason:   d.DisputeReason,
		CancelReason:    string(d.CancelReason),
		ExpiresAt:       d.ExpiresAt.UTC().Format(time.RFC3339),
		ShippedAt:       formatTime(d.ShippedAt),
		CompletedAt:     formatTime(d.CompletedAt),
		DisputedAt:      formatTime(d.DisputedAt),
		CancelledAt:     formatTime(d.CancelledAt),
		FundsReleasedAt: formatTime(d.FundsReleasedAt),
		CreatedAt:       d.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       d.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func (h *DealHandler) Initiate(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthenticated(c)
	}
	var req InitiateDealRequest
	if err := decode(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	d, err := h.market.InitiateDeal(c.Request().Context(), uid, service.InitiateDealInput{
		ListingID: req.ListingID,
		SellerID:  req.SellerID,
		Amount:    req.Amount,
		Currency:  req.Currency,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toDealResponse(*d))
}

func (h *DealHandler) Transition(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthenticated(c)
	}
	var req TransitionRequest
	if err := decode(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	d, err := h.market.TransitionDeal(c.Request().Context(), uid, c.Param("id"), req.transition())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toDealResponse(*d))
}

func (h *DealHandler) Get(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthenticated(c)
	}
	d, err := h.market.GetDeal(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toDealResponse(*d))
}

func (h *DealHandler) ListAsBuyer(c echo.Context) error {
	return h.list(c, service.RoleBuyer)
}

func (h *DealHandler) ListAsSeller(c echo.Context) error {
	return h.list(c, service.RoleSeller)
}

func (h *DealHandler) list(c echo.Context, role service.Role) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return unauthenticated(c)
	}
	page, ok := parsePage(c)
	if !ok {
		return badRequest(c, "invalid skip or limit")
	}
	list, err := h.market.ListDeals(c.Request().Context(), uid, role, page)
	if err != nil {
		return writeError(c, err)
	}
	resp := make([]DealResponse, 0, len(list))
	for _, d := range list {
		resp = append(resp, toDealResponse(d))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"deals": resp})
}
