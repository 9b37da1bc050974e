package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart_parkai/internal/domain"
	"smart_parkai/internal/repository"
	"smart_parkai/internal/service"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type memRecords struct {
	mu      sync.Mutex
	records map[string]domain.BookingRecord
}

func (r *memRecords) Create(_ context.Context, rec *domain.BookingRecord) (*domain.BookingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.CreatedAt = time.Now().UTC()
	rec.UpdatedAt = rec.CreatedAt
	r.records[rec.ID] = *rec
	return rec, nil
}

func (r *memRecords) FindByID(_ context.Context, id string) (*domain.BookingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

func (r *memRecords) Find(_ context.Context, filter domain.BookingRecordFilterDTO) ([]domain.BookingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.BookingRecord{}
	for _, rec := range r.records {
		if filter.Status != nil && string(rec.PaymentStatus) != *filter.Status {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRecords) AttachPaymentIntent(_ context.Context, id string, piID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return repository.ErrNotFound
	}
	if rec.PaymentIntentID.Valid || rec.PaymentStatus != domain.PaymentPending {
		return repository.ErrDuplicateEntry
	}
	rec.PaymentIntentID.SetValid(piID)
	r.records[id] = rec
	return nil
}

func (r *memRecords) UpdatePaymentStatusByIntent(_ context.Context, piID string, status domain.PaymentStatus, at time.Time) (*domain.BookingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rec := range r.records {
		if rec.PaymentIntentID.String == piID {
			rec.PaymentStatus = status
			if status == domain.PaymentPaid {
				rec.PaidAt.SetValid(at)
			}
			r.records[id] = rec
			return &rec, nil
		}
	}
	return nil, repository.ErrNotFound
}

type memUsers struct {
	mu    sync.Mutex
	users []domain.User
}

func (r *memUsers) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == user.Username {
			return nil, repository.ErrDuplicateEntry
		}
	}
	u := *user
	u.ID = len(r.users) + 1
	r.users = append(r.users, u)
	return &u, nil
}

func (r *memUsers) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			found := u
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUsers) FindByID(_ context.Context, id int) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			found := u
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

type stubTranscriber string

func (s stubTranscriber) Transcribe(context.Context, []byte) (string, error) {
	return string(s), nil
}

type stubGateway struct{}

func (stubGateway) CreatePaymentIntent(_ context.Context, amount int64, currency string, metadata map[string]string) (*domain.PaymentIntent, error) {
	id := "pi_" + metadata["orderId"]
	return &domain.PaymentIntent{ID: id, ClientSecret: id + "_secret", Amount: amount, Currency: currency, Metadata: metadata}, nil
}

func (stubGateway) GetPaymentIntent(_ context.Context, id string) (*domain.PaymentIntent, error) {
	return &domain.PaymentIntent{ID: id, Status: "succeeded"}, nil
}

func (stubGateway) ParseWebhook(payload []byte, signature string) (*domain.PaymentEvent, error) {
	if signature != "t=1,v1=ok" {
		return nil, service.ErrInvalidWebhook
	}
	var event domain.PaymentEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, service.ErrInvalidWebhook
	}
	return &event, nil
}

type stubDetector struct{}

func (stubDetector) DetectLabels(context.Context, *rekognition.DetectLabelsInput, ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error) {
	return &rekognition.DetectLabelsOutput{Labels: []types.Label{{
		Name: aws.String("Car"),
		Instances: []types.Instance{{
			Confidence:  aws.Float32(95),
			BoundingBox: &types.BoundingBox{Left: aws.Float32(0.01), Top: aws.Float32(0.01), Width: aws.Float32(0.05), Height: aws.Float32(0.05)},
		}},
	}}}, nil
}

type testServer struct {
	router  *gin.Engine
	records *memRecords
}

func newTestServer(t *testing.T, transcriber service.Transcriber, perMin int) *testServer {
	t.Helper()
	records := &memRecords{records: make(map[string]domain.BookingRecord)}
	gateway := stubGateway{}
	bookings := service.NewBookingService(service.NewMemorySessionStore(), records, service.BookingServiceOptions{Payments: gateway})
	s := Services{
		Auth:                  service.NewAuthService(&memUsers{}, "router-secret", time.Hour),
		Bookings:              bookings,
		Payments:              service.NewPaymentService(gateway, records, "inr", nil),
		Detection:             service.NewDetectionService(stubDetector{}, service.MainLot, nil),
		Transcriber:           transcriber,
		StripePublishableKey:  "pk_test_123",
		CommandRequestsPerMin: perMin,
	}
	return &testServer{router: SetupRouter(s, nil), records: records}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func (ts *testServer) startSession(t *testing.T) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/v1/booking-sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var view domain.SessionResponseDTO
	decode(t, w, &view)
	return view.Session.ID
}

func TestHealthAndOptions(t *testing.T) {
	ts := newTestServer(t, nil, 0)

	w := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/booking-options", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var opts struct {
		Durations []domain.DurationPreset `json:"durations"`
		Spots     []domain.SpotOption     `json:"spots"`
		Locations []map[string]string     `json:"locations"`
	}
	decode(t, w, &opts)
	assert.Len(t, opts.Durations, 5)
	assert.Len(t, opts.Spots, 3)
	assert.Len(t, opts.Locations, 3)

	w = ts.do(t, http.MethodGet, "/config", nil)
	assert.JSONEq(t, `{"publishableKey":"pk_test_123"}`, w.Body.String())
}

func TestBookingFlow(t *testing.T) {
	ts := newTestServer(t, nil, 0)
	id := ts.startSession(t)
	base := "/api/v1/booking-sessions/" + id

	w := ts.do(t, http.MethodPost, base+"/commands", domain.CommandDTO{Utterance: "2 hours near exit with valet"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var cmd domain.CommandResponseDTO
	decode(t, w, &cmd)
	assert.True(t, cmd.Result.Understood)
	assert.Equal(t, 120, cmd.Session.Intent.DurationMinutes)
	assert.Equal(t, domain.SpotNearExit, cmd.Session.Intent.SpotPreference)
	require.NotNil(t, cmd.Quote)
	assert.Equal(t, 500, cmd.Quote.Total)

	w = ts.do(t, http.MethodPost, base+"/promo", domain.PromoDTO{Code: "SAVE50"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "FIRST10")

	w = ts.do(t, http.MethodPost, base+"/promo", domain.PromoDTO{Code: "FIRST10"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodGet, base+"/quote", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var quote domain.Quote
	decode(t, w, &quote)
	assert.Equal(t, 450, quote.Total)

	w = ts.do(t, http.MethodPost, base+"/checkout", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var checkout domain.CheckoutResponseDTO
	decode(t, w, &checkout)
	assert.Equal(t, 450, checkout.Record.Price)
	assert.Equal(t, "P1", checkout.Record.SlotLabel)
	assert.Equal(t, "pi_"+checkout.Record.ID+"_secret", checkout.ClientSecret)

	w = ts.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckoutWithoutPreference(t *testing.T) {
	ts := newTestServer(t, nil, 0)
	id := ts.startSession(t)

	w := ts.do(t, http.MethodPost, "/api/v1/booking-sessions/"+id+"/checkout", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"error":"Please select your parking preference"}`, w.Body.String())
}

func TestSelectionValidation(t *testing.T) {
	ts := newTestServer(t, nil, 0)
	id := ts.startSession(t)
	base := "/api/v1/booking-sessions/" + id

	w := ts.do(t, http.MethodPatch, base+"/selection", map[string]interface{}{"spot_preference": "roof"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPatch, base+"/selection", map[string]interface{}{"custom_minutes": 95, "location": "airport"})
	require.Equal(t, http.StatusOK, w.Code)
	var view domain.SessionResponseDTO
	decode(t, w, &view)
	assert.Equal(t, 120, view.Session.Intent.DurationMinutes)
	assert.Equal(t, "AI recommends P3", view.Recommendation)

	w = ts.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func voiceRequest(t *testing.T, path string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio", "command.wav")
	require.NoError(t, err)
	_, err = part.Write([]byte("RIFF"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestApplyVoice(t *testing.T) {
	ts := newTestServer(t, stubTranscriber("30 minutes near the lift"), 0)
	id := ts.startSession(t)

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, voiceRequest(t, "/api/v1/booking-sessions/"+id+"/voice"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var cmd domain.CommandResponseDTO
	decode(t, w, &cmd)
	assert.Equal(t, 30, cmd.Session.Intent.DurationMinutes)
	assert.Equal(t, domain.SpotNearElevator, cmd.Session.Intent.SpotPreference)
	assert.Equal(t, "30 minutes near the lift", cmd.Session.Transcript)

	disabled := newTestServer(t, nil, 0)
	other := disabled.startSession(t)
	w = httptest.NewRecorder()
	disabled.router.ServeHTTP(w, voiceRequest(t, "/api/v1/booking-sessions/"+other+"/voice"))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCommandRateLimit(t *testing.T) {
	ts := newTestServer(t, nil, 2)
	id := ts.startSession(t)
	path := "/api/v1/booking-sessions/" + id + "/commands"

	for i := 0; i < 2; i++ {
		w := ts.do(t, http.MethodPost, path, domain.CommandDTO{Utterance: "valet"})
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := ts.do(t, http.MethodPost, path, domain.CommandDTO{Utterance: "valet"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestDetectSpots(t *testing.T) {
	ts := newTestServer(t, nil, 0)

	w := ts.do(t, http.MethodGet, "/api/v1/parking-lot/main", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var layout domain.LotLayout
	decode(t, w, &layout)
	assert.Equal(t, 50, layout.TotalSpots())

	image := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("frame"))
	w = ts.do(t, http.MethodPost, "/api/v1/detect-spots", domain.DetectionRequestDTO{ImageBase64: image})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result domain.DetectionResult
	decode(t, w, &result)
	assert.Equal(t, 49, result.AvailableSpots)

	w = ts.do(t, http.MethodPost, "/api/v1/detect-spots", domain.DetectionRequestDTO{ImageBase64: "%%%"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func operatorToken(t *testing.T, ts *testServer) string {
	t.Helper()
	creds := domain.RegisterUserDTO{Username: "gatekeeper", Password: "s3cret!"}
	w := ts.do(t, http.MethodPost, "/auth/register", creds)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = ts.do(t, http.MethodPost, "/auth/register", creds)
	require.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, "/auth/login", domain.LoginUserDTO{Username: "gatekeeper", Password: "wrong!"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	w = ts.do(t, http.MethodPost, "/auth/login", domain.LoginUserDTO{Username: "gatekeeper", Password: "s3cret!"})
	require.Equal(t, http.StatusOK, w.Code)
	var auth domain.AuthResponseDTO
	decode(t, w, &auth)
	return auth.Token
}

func TestBookingRecordsRequireOperator(t *testing.T) {
	ts := newTestServer(t, nil, 0)
	id := ts.startSession(t)
	w := ts.do(t, http.MethodPost, "/api/v1/booking-sessions/"+id+"/commands", domain.CommandDTO{Utterance: "1 hour ev charging"})
	require.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodPost, "/api/v1/booking-sessions/"+id+"/checkout", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var checkout domain.CheckoutResponseDTO
	decode(t, w, &checkout)

	w = ts.do(t, http.MethodGet, "/api/v1/bookings", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = ts.do(t, http.MethodGet, "/api/v1/bookings", nil, "Authorization", "Bearer junk")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	bearer := "Bearer " + operatorToken(t, ts)

	w = ts.do(t, http.MethodGet, "/api/v1/bookings?status=pending", nil, "Authorization", bearer)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var records []domain.BookingRecord
	decode(t, w, &records)
	require.Len(t, records, 1)
	assert.Equal(t, checkout.Record.ID, records[0].ID)

	w = ts.do(t, http.MethodGet, "/api/v1/bookings/"+checkout.Record.ID, nil, "Authorization", bearer)
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodGet, "/api/v1/bookings/unknown", nil, "Authorization", bearer)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/bookings/export", nil, "Authorization", bearer)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "bookings-")
	rows, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "id", rows[0][0])
	assert.Equal(t, checkout.Record.ID, rows[1][0])
	assert.Equal(t, "P2", rows[1][3])
	assert.Equal(t, "200", rows[1][5])
}

func TestPaymentRoutes(t *testing.T) {
	ts := newTestServer(t, nil, 0)
	ts.records.records["order-1"] = domain.BookingRecord{ID: "order-1", PaymentStatus: domain.PaymentPending}

	w := ts.do(t, http.MethodPost, "/api/payment/initialize", map[string]interface{}{"amount": 270, "orderId": "order-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"clientSecret":"pi_order-1_secret","paymentIntentId":"pi_order-1"}`, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/payment/initialize", map[string]interface{}{"orderId": "order-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/payment/details/pi_order-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	event := fmt.Sprintf(`{"id":"evt_1","type":%q,"payment_intent_id":"pi_order-1"}`, domain.PaymentEventSucceeded)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(event))
	req.Header.Set("Stripe-Signature", "t=1,v1=forged")
	w = httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(event))
	req.Header.Set("Stripe-Signature", "t=1,v1=ok")
	w = httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.PaymentPaid, ts.records.records["order-1"].PaymentStatus)

	w = ts.do(t, http.MethodPost, "/api/payment/initialize", map[string]interface{}{"amount": 270, "orderId": "order-1"})
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Equal(t, "pi_order-1", ts.records.records["order-1"].PaymentIntentID.String)
}
