package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shinyyama/safedeal/internal/db"
	"github.com/shinyyama/safedeal/internal/repository"
	"github.com/shinyyama/safedeal/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stringsReader(s string) io.Reader {
	return strings.NewReader(s)
}

type testAPI struct {
	e   *echo.Echo
	now time.Time
}

// newTestAPI mounts the deal and conversation handlers on an sqlite-backed
// marketplace. The X-Test-UID header stands in for authentication.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gdb, err := db.OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	api := &testAPI{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return api.now }
	convRepo := repository.NewConversationRepository(gdb)
	msgRepo := repository.NewMessageRepository(gdb)
	market := service.NewMarketplace(
		service.NewConversationService(convRepo, msgRepo, clock, zerolog.Nop()),
		service.NewMessageService(convRepo, msgRepo, 0, clock, zerolog.Nop()),
		service.NewDealService(repository.NewDealRepository(gdb), nil, service.DealConfig{RejectDuplicateActive: true, Now: clock}, zerolog.Nop()),
		service.NewNotificationService(repository.NewNotificationRepository(gdb), zerolog.Nop()),
		nil,
		zerolog.Nop(),
	)

	e := echo.New()
	e.Validator = NewValidator()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if uid := c.Request().Header.Get("X-Test-UID"); uid != "" {
				c.Set("uid", uid)
			}
			return next(c)
		}
	})
	deals := NewDealHandler(market)
	convs := NewConversationHandler(market, zerolog.Nop())
	e.POST("/deals", deals.Initiate)
	e.GET("/deals/buyer", deals.ListAsBuyer)
	e.GET("/deals/seller", deals.ListAsSeller)
	e.GET("/deals/:id", deals.Get)
	e.POST("/deals/:id/transition", deals.Transition)
	e.GET("/conversations", convs.List)
	e.POST("/conversations/:listing_id/:seller_id", convs.Contact)
	e.GET("/conversations/:id", convs.Get)
	e.GET("/conversations/:id/messages", convs.ListMessages)
	e.POST("/conversations/:id/messages", convs.SendMessage)
	e.POST("/conversations/:id/mark-read", convs.MarkRead)
	api.e = e
	return api
}

func (a *testAPI) do(t *testing.T, method, path, uid, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if uid != "" {
		req.Header.Set("X-Test-UID", uid)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	decodeBody(t, rec, &resp)
	return resp.Error.Code
}

func TestDealHandler_Lifecycle(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/deals", "buyer", `{"listing_id":"l1","seller_id":"seller","amount":"50000"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var deal DealResponse
	decodeBody(t, rec, &deal)
	assert.Equal(t, "pending", deal.Status)
	assert.Equal(t, "50000.00", deal.Amount)
	assert.Equal(t, "KZT", deal.Currency)
	assert.Equal(t, "buyer", deal.BuyerID)

	rec = api.do(t, http.MethodPost, "/deals", "buyer", `{"listing_id":"l1","seller_id":"seller","amount":10}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_active_deal", errorCode(t, rec))

	rec = api.do(t, http.MethodPost, "/deals/"+deal.ID+"/transition", "buyer", `{"status":"shipped","shipping_number":"KZ1"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/deals/"+deal.ID+"/transition", "seller", `{"status":"shipped"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_argument", errorCode(t, rec))

	rec = api.do(t, http.MethodPost, "/deals/"+deal.ID+"/transition", "seller", `{"status":"shipped","shipping_number":"KZ1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeBody(t, rec, &deal)
	assert.Equal(t, "shipped", deal.Status)
	assert.Equal(t, "KZ1", deal.ShippingNumber)
	assert.NotNil(t, deal.ShippedAt)

	rec = api.do(t, http.MethodPost, "/deals/"+deal.ID+"/transition", "buyer", `{"status":"completed"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPost, "/deals/"+deal.ID+"/transition", "buyer", `{"status":"completed"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "illegal_transition", errorCode(t, rec))

	rec = api.do(t, http.MethodGet, "/deals/"+deal.ID, "stranger", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodGet, "/deals/"+deal.ID, "seller", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &deal)
	assert.Equal(t, "completed", deal.Status)
}

func TestDealHandler_Expired(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/deals", "buyer", `{"listing_id":"l1","seller_id":"seller","amount":"100.50","currency":"usd"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var deal DealResponse
	decodeBody(t, rec, &deal)
	assert.Equal(t, "USD", deal.Currency)

	api.now = api.now.Add(8 * 24 * time.Hour)
	rec = api.do(t, http.MethodPost, "/deals/"+deal.ID+"/transition", "seller", `{"status":"shipped","shipping_number":"KZ1"}`)
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "expired", errorCode(t, rec))
}

func TestDealHandler_BadRequests(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name string
		uid  string
		body string
		want int
	}{
		{"no uid", "", `{"listing_id":"l1","seller_id":"s","amount":"1"}`, http.StatusUnauthorized},
		{"malformed json", "buyer", `{"listing_id":`, http.StatusBadRequest},
		{"missing listing", "buyer", `{"seller_id":"s","amount":"1"}`, http.StatusBadRequest},
		{"self deal", "s", `{"listing_id":"l1","seller_id":"s","amount":"1"}`, http.StatusBadRequest},
		{"zero amount", "buyer", `{"listing_id":"l1","seller_id":"s","amount":"0"}`, http.StatusBadRequest},
		{"bad currency", "buyer", `{"listing_id":"l1","seller_id":"s","amount":"1","currency":"US"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/deals", tt.uid, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	rec := api.do(t, http.MethodPost, "/deals/missing/transition", "buyer", `{"status":"completed"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPost, "/deals/missing/transition", "buyer", `{"status":"refunded"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDealHandler_ListByRole(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/deals", "buyer", `{"listing_id":"l1","seller_id":"seller","amount":"10"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Deals []DealResponse `json:"deals"`
	}
	rec = api.do(t, http.MethodGet, "/deals/buyer", "buyer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &resp)
	assert.Len(t, resp.Deals, 1)

	rec = api.do(t, http.MethodGet, "/deals/seller", "buyer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &resp)
	assert.Empty(t, resp.Deals)

	rec = api.do(t, http.MethodGet, "/deals/seller?limit=500", "seller", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDealHandler_Dispute(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/deals", "buyer", `{"listing_id":"l1","seller_id":"seller","amount":"10"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var deal DealResponse
	decodeBody(t, rec, &deal)

	rec = api.do(t, http.MethodPost, "/deals/"+deal.ID+"/transition", "seller", `{"status":"disputed"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/deals/"+deal.ID+"/transition", "seller", `{"status":"disputed","dispute_reason":"item not as described"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeBody(t, rec, &deal)
	assert.Equal(t, "disputed", deal.Status)
	assert.Equal(t, "item not as described", deal.DisputeReason)
	assert.NotNil(t, deal.DisputedAt)

	rec = api.do(t, http.MethodPost, "/deals/"+deal.ID+"/transition", "seller", `{"status":"shipped","shipping_number":"KZ1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDealHandler_ListingIDBoundsMatchConversations(t *testing.T) {
	api := newTestAPI(t)

	longest := strings.Repeat("l", service.MaxIDLength)
	rec := api.do(t, http.MethodPost, "/conversations/"+longest+"/seller", "buyer", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = api.do(t, http.MethodPost, "/deals", "buyer", `{"listing_id":"`+longest+`","seller_id":"seller","amount":"10"}`)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	tooLong := longest + "l"
	rec = api.do(t, http.MethodPost, "/conversations/"+tooLong+"/seller", "buyer", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = api.do(t, http.MethodPost, "/deals", "buyer", `{"listing_id":"`+tooLong+`","seller_id":"seller","amount":"10"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
