package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testToken(token string) TokenSource {
	return func(context.Context) string { return token }
}

func TestCartNormalizesItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/cart", r.URL.Path)
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"id":"i1","quantity":2,"shop_id":"s1","shop_name":"Shop One",
			 "product":{"id":"p1","name":"Tea","price":100000,"sale_price":80000},
			 "variant":{"id":"va","name":"Large","sale_price":70000}}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testToken("tok-1"))
	items, err := client.Cart(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(70000), items[0].EffectiveUnitPrice())
	assert.Equal(t, "Shop One", items[0].ShopName)
}

func TestApplyVoucherSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/vouchers/apply", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"valid":true,"discount":50000,"free_shipping":false}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testToken("tok-1"))
	shop := "s1"
	result, err := client.ApplyVoucher(context.Background(), ApplyVoucherRequest{
		Code:   "SALE10",
		ShopID: &shop,
		Items:  []VoucherItem{{ShopID: "s1", ProductID: "p1", Price: 250000, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50000), result.Discount)
	assert.False(t, result.FreeShipping)
}

func TestApplyVoucherAlreadyUsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"voucher_already_used","message":"voucher was already used"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testToken("tok-1"))
	_, err := client.ApplyVoucher(context.Background(), ApplyVoucherRequest{Code: "SALE10"})
	apiErr, ok := AsAPIError(err)
	require.True(t, ok, "expected APIError, got %v", err)
	assert.True(t, apiErr.AlreadyUsed())
	assert.Equal(t, "voucher was already used", apiErr.Message)
}

func TestMessagePagePagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "c1", r.URL.Query().Get("counterpart_id"))
		require.Equal(t, "2", r.URL.Query().Get("page"))
		require.Equal(t, "15", r.URL.Query().Get("page_size"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"id":"m1","sender_id":"c1","receiver_id":"u1","message":"hi","created_at":"2026-08-01T10:00:00Z"}
		],"current_page":2,"last_page":3}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testToken("tok-1"))
	page, err := client.MessagePage(context.Background(), "c1", 2, 15)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1)
	assert.True(t, page.HasMore())
}

func TestSendMessageMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "c1", r.FormValue("receiver_id"))
		require.Equal(t, "hello", r.FormValue("message"))
		_, header, err := r.FormFile("image")
		require.NoError(t, err)
		require.Equal(t, "photo.png", header.Filename)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"m9","sender_id":"u1","receiver_id":"c1","message":"hello","created_at":"2026-08-01T10:00:00Z"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testToken("tok-1"))
	msg, err := client.SendMessage(context.Background(), SendMessageRequest{
		ReceiverID: "c1",
		Body:       "hello",
		Image:      &Attachment{Filename: "photo.png", MIME: "image/png", Data: []byte{0x89, 0x50}},
	})
	require.NoError(t, err)
	assert.Equal(t, "m9", msg.ID)
}

func TestTimeoutDistinguishedFromFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testToken("tok-1"), WithTimeout(20*time.Millisecond))
	_, err := client.Cart(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout), "expected ErrTimeout, got %v", err)
}
