package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"inventory/internal/app"
	"inventory/internal/config"
	"inventory/pkg/client"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySession(t *testing.T) {
	var expired int32
	s := client.NewMemorySession("abc", func() { atomic.AddInt32(&expired, 1) })
	assert.Equal(t, "abc", s.Token())

	s.SetToken("def")
	assert.Equal(t, "def", s.Token())

	s.Expire()
	assert.Empty(t, s.Token())
	assert.Equal(t, int32(1), atomic.LoadInt32(&expired))
}

func TestClientSendsTokenAndExpiresOn401(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Token is not valid"}`))
	}))
	defer srv.Close()

	var expired bool
	session := client.NewMemorySession("stale", func() { expired = true })
	c := client.New(srv.URL+"/api", session)

	_, err := c.ListProducts(context.Background(), client.ListParams{})
	require.Error(t, err)
	assert.True(t, client.IsUnauthorized(err))
	assert.Equal(t, "Bearer stale", gotAuth)
	assert.True(t, expired)
	assert.Empty(t, session.Token())

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Token is not valid", apiErr.Message)
}

func TestClientErrorWithoutEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/products", r.URL.Path)
		assert.Equal(t, "lap", r.URL.Query().Get("search"))
		assert.Empty(t, r.Header.Get("Authorization"))
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := client.New(srv.URL+"/api/", nil)
	_, err := c.ListProducts(context.Background(), client.ListParams{Search: "lap"})

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "Bad Gateway", apiErr.Message)
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	v.Set("APP_ENV", "test")
	v.Set("JWT_SECRET", "test_jwt_secret")
	v.Set("DATABASE_DRIVER", config.DriverMemory)
	v.Set("UPLOAD_DIR", t.TempDir())
	cfg, err := config.FromViper(v)
	require.NoError(t, err)

	a, err := app.NewApp(context.Background(), cfg, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(adaptor.FiberApp(a.Fiber))
	t.Cleanup(func() {
		srv.Close()
		_ = a.Shutdown(context.Background())
	})
	return srv
}

func TestClientAgainstServer(t *testing.T) {
	srv := newServer(t)
	session := client.NewMemorySession("", nil)
	c := client.New(srv.URL+"/api", session)
	ctx := context.Background()

	user, err := c.Register(ctx, "frank", "frank@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, "frank", user.Username)

	_, err = c.Register(ctx, "frank", "frank@example.com", "password123")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)

	login, err := c.Login(ctx, "frank", "password123")
	require.NoError(t, err)
	assert.Equal(t, login.Token, session.Token())

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, user.ID, me.ID)

	created, err := c.CreateProduct(ctx, client.ProductForm{
		Name:     client.String("Tent"),
		Category: client.String("Sports"),
		Price:    client.String("149.90"),
		Quantity: client.String("3"),
		SKU:      client.String("SP-1"),
	}, &client.Image{Filename: "tent.png", Content: strings.NewReader("png")})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("149.90").Equal(created.Price))
	assert.True(t, strings.HasPrefix(created.Image, "/uploads/"))
	require.NotNil(t, created.CreatedBy)
	assert.Equal(t, "frank", created.CreatedBy.Username)

	updated, err := c.UpdateProduct(ctx, created.ID, client.ProductForm{Quantity: client.String("30")}, nil)
	require.NoError(t, err)
	assert.Equal(t, 30, updated.Quantity)
	assert.Equal(t, "Tent", updated.Name)

	list, err := c.ListProducts(ctx, client.ListParams{Category: "Sports", SortBy: "name", Order: "asc"})
	require.NoError(t, err)
	require.Len(t, list.Products, 1)
	assert.Zero(t, list.LowStockCount)

	got, err := c.GetProduct(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "SP-1", got.SKU)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalProducts)
	assert.True(t, decimal.RequireFromString("4497").Equal(stats.TotalValue))

	require.NoError(t, c.DeleteProduct(ctx, created.ID))
	_, err = c.GetProduct(ctx, created.ID)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestClientDecodesWireTypes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"_id":"p1","name":"Lamp","price":12.5,"quantity":2,"sku":"H-1","lowStockThreshold":5,"createdBy":{"_id":"u1","username":"alice"}}`))
	}))
	defer srv.Close()

	p, err := client.New(srv.URL, nil).GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Lamp", p.Name)
	assert.True(t, decimal.RequireFromString("12.5").Equal(p.Price))
	assert.Equal(t, &client.Owner{ID: "u1", Username: "alice"}, p.CreatedBy)
}
