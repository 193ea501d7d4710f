package whatsapp_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whataybo/api/internal/whatsapp"
)

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "201001234567", whatsapp.NormalizePhone("+20 100 123-4567"))
	assert.Equal(t, "201001234567", whatsapp.NormalizePhone("00201001234567"))
	assert.Equal(t, "", whatsapp.NormalizePhone("n/a"))
}

func TestDeepLink(t *testing.T) {
	got := whatsapp.DeepLink("+20 100 123 4567", "Order ORD-20250101-001\nTotal: 100.00 EGP")
	assert.Equal(t, "https://wa.me/201001234567?text=Order%20ORD-20250101-001%0ATotal%3A%20100.00%20EGP", got)

	assert.Equal(t, "https://wa.me/201001234567", whatsapp.DeepLink("201001234567", ""))
}

func TestTemplateForStatus(t *testing.T) {
	tests := map[string]string{
		"CONFIRMED":        "order_confirmed",
		"PREPARING":        "order_preparing",
		"READY":            "order_ready",
		"OUT_FOR_DELIVERY": "order_out_for_delivery",
		"DELIVERED":        "order_delivered",
		"COMPLETED":        "order_completed",
		"CANCELLED":        "order_cancelled",
	}
	for status, want := range tests {
		got, ok := whatsapp.TemplateForStatus(status)
		assert.True(t, ok, status)
		assert.Equal(t, want, got)
	}
	_, ok := whatsapp.TemplateForStatus("PENDING")
	assert.False(t, ok)
}

type capturedRequest struct {
	Path          string
	Authorization string
	Body          map[string]interface{}
}

func newCloudServer(t *testing.T, status int) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var reqs []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		_ = json.Unmarshal(data, &body)
		reqs = append(reqs, capturedRequest{Path: r.URL.Path, Authorization: r.Header.Get("Authorization"), Body: body})
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"message":"bad"}}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

func TestCloudClient_OrderStatusChanged(t *testing.T) {
	srv, reqs := newCloudServer(t, http.StatusOK)
	client := whatsapp.NewCloudClient(srv.URL+"/", "tok", "12345", "ar")

	err := client.OrderStatusChanged(context.Background(), whatsapp.OrderNotice{
		RestaurantName: "Nile Bites",
		OrderNumber:    "ORD-20250101-001",
		CustomerName:   "Mona",
		CustomerPhone:  "+20 100 123 4567",
		Status:         "READY",
	})
	require.NoError(t, err)
	require.Len(t, *reqs, 1)

	got := (*reqs)[0]
	assert.Equal(t, "/12345/messages", got.Path)
	assert.Equal(t, "Bearer tok", got.Authorization)
	assert.Equal(t, "201001234567", got.Body["to"])
	assert.Equal(t, "template", got.Body["type"])
	tpl := got.Body["template"].(map[string]interface{})
	assert.Equal(t, "order_ready", tpl["name"])
	assert.Equal(t, "ar", tpl["language"].(map[string]interface{})["code"])
}

func TestCloudClient_StatusWithoutTemplateIsNoop(t *testing.T) {
	srv, reqs := newCloudServer(t, http.StatusOK)
	client := whatsapp.NewCloudClient(srv.URL, "tok", "12345", "en")

	require.NoError(t, client.OrderStatusChanged(context.Background(), whatsapp.OrderNotice{Status: "PENDING"}))
	assert.Empty(t, *reqs)
}

func TestCloudClient_APIError(t *testing.T) {
	srv, _ := newCloudServer(t, http.StatusBadRequest)
	client := whatsapp.NewCloudClient(srv.URL, "tok", "12345", "en")

	err := client.SendText(context.Background(), "201001234567", "hi")
	var apiErr *whatsapp.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestCloudClient_NotConfigured(t *testing.T) {
	client := whatsapp.NewCloudClient("http://unused", "", "", "en")
	err := client.SendText(context.Background(), "201001234567", "hi")
	assert.ErrorIs(t, err, whatsapp.ErrNotConfigured)
}

type jobRecorder struct {
	jobs []whatsapp.Job
	err  error
}

func (r *jobRecorder) PublishJob(_ context.Context, job whatsapp.Job) error {
	r.jobs = append(r.jobs, job)
	return r.err
}

func TestQueueNotifier(t *testing.T) {
	rec := &jobRecorder{}
	q := whatsapp.NewQueueNotifier(rec)
	ctx := context.Background()

	require.NoError(t, q.OrderPlaced(ctx, whatsapp.OrderNotice{OrderNumber: "ORD-1"}))
	require.NoError(t, q.OrderStatusChanged(ctx, whatsapp.OrderNotice{OrderNumber: "ORD-1", Status: "PENDING"}))
	require.NoError(t, q.OrderStatusChanged(ctx, whatsapp.OrderNotice{OrderNumber: "ORD-1", Status: "READY"}))
	require.NoError(t, q.SendText(ctx, "2010", "hello"))

	require.Len(t, rec.jobs, 3)
	assert.Equal(t, whatsapp.JobOrderPlaced, rec.jobs[0].Kind)
	assert.Equal(t, whatsapp.JobOrderStatus, rec.jobs[1].Kind)
	assert.Equal(t, "READY", rec.jobs[1].Notice.Status)
	assert.Equal(t, whatsapp.JobText, rec.jobs[2].Kind)
	assert.Equal(t, "hello", rec.jobs[2].Text)

	rec.err = errors.New("broker down")
	assert.Error(t, q.SendText(ctx, "2010", "x"))
}

type notifierSpy struct {
	placed, status []whatsapp.OrderNotice
	texts          []string
}

func (s *notifierSpy) OrderPlaced(_ context.Context, n whatsapp.OrderNotice) error {
	s.placed = append(s.placed, n)
	return nil
}

func (s *notifierSpy) OrderStatusChanged(_ context.Context, n whatsapp.OrderNotice) error {
	s.status = append(s.status, n)
	return nil
}

func (s *notifierSpy) SendText(_ context.Context, phone, text string) error {
	s.texts = append(s.texts, phone+":"+text)
	return nil
}

func TestDeliver(t *testing.T) {
	spy := &notifierSpy{}
	ctx := context.Background()

	require.NoError(t, whatsapp.Deliver(ctx, spy, whatsapp.Job{Kind: whatsapp.JobOrderPlaced, Notice: &whatsapp.OrderNotice{OrderNumber: "A"}}))
	require.NoError(t, whatsapp.Deliver(ctx, spy, whatsapp.Job{Kind: whatsapp.JobOrderStatus, Notice: &whatsapp.OrderNotice{OrderNumber: "B"}}))
	require.NoError(t, whatsapp.Deliver(ctx, spy, whatsapp.Job{Kind: whatsapp.JobText, Phone: "1", Text: "hi"}))

	assert.Len(t, spy.placed, 1)
	assert.Len(t, spy.status, 1)
	assert.Equal(t, []string{"1:hi"}, spy.texts)

	assert.Error(t, whatsapp.Deliver(ctx, spy, whatsapp.Job{Kind: whatsapp.JobOrderStatus}))
	assert.Error(t, whatsapp.Deliver(ctx, spy, whatsapp.Job{Kind: "bogus"}))
}
