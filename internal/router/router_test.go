package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"langschool_backend/internal/metrics"
	"langschool_backend/internal/repositories"
	"langschool_backend/internal/services"
	"langschool_backend/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

type testServer struct {
	engine   *gin.Engine
	contacts *repositories.MemoryContactRepository
}

func newTestServer(t *testing.T, safeIPs ...string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	contacts := repositories.NewMemoryContactRepository()
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	m := metrics.MustNewMetrics(prometheus.NewRegistry())
	engine := New(Dependencies{
		OfferingService:    services.NewOfferingService(repositories.NewMemoryOfferingRepository(), func() time.Time { return now }, m),
		ContactService:     services.NewContactService(contacts, nil, m, services.DefaultContactServiceConfig()),
		Metrics:            m,
		JWTSecret:          testSecret,
		SafeIPs:            safeIPs,
		CORSAllowedOrigins: []string{"http://localhost:3000"},
	})
	return &testServer{engine: engine, contacts: contacts}
}

func token(t *testing.T, userID int64, role string) string {
	t.Helper()
	tok, err := utils.GenerateAccessToken(testSecret, userID, "someone@example.com", role)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, w)
	apiErr, ok := body["error"].(map[string]interface{})
	require.True(t, ok, w.Body.String())
	code, _ := apiErr["code"].(string)
	return code
}

func contactForm(email, note string) gin.H {
	return gin.H{
		"name":           "山田太郎",
		"name_en":        "Taro Yamada",
		"contact_emails": []gin.H{{"email": email}},
		"contact_notes":  []gin.H{{"note": note}},
	}
}

func TestPing(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", decode(t, w)["message"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestContactFormStatuses(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/contact-form", "", contactForm("new@example.com", "Hi, interested in lessons"))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "ok", decode(t, w)["details"])

	w = s.do(t, http.MethodPost, "/api/v1/contact-form", "", contactForm("new@example.com", "もう一度質問です"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["details"])

	w = s.do(t, http.MethodPost, "/api/v1/contact-form", "", contactForm("not-an-email", "Buy cheap watches now http://spam.example"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, utils.ErrCodeValidationFailed, errorCode(t, w))

	w = s.do(t, http.MethodPost, "/api/v1/contact-form", "", contactForm("spam@example.com", "Buy cheap watches now http://spam.example"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, utils.ErrCodeSubmissionRejected, errorCode(t, w))
	assert.Len(t, s.contacts.BannedEmails(), 1)
	assert.Equal(t, 1, s.contacts.ContactCount())
}

func TestOperatorOfferingFlow(t *testing.T) {
	s := newTestServer(t)
	admin := token(t, 1, utils.RoleAdmin)

	w := s.do(t, http.MethodPost, "/api/v1/tax-rates", admin, gin.H{"name": "消費税", "rate": "10", "start_date": "2019-10-01T00:00:00Z"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rateID := decode(t, w)["id"].(float64)

	w = s.do(t, http.MethodPost, "/api/v1/offerings", admin, gin.H{
		"name": "Private Lesson", "service_or_product": "service", "type": "class", "tax_rate_id": rateID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	offeringID := int64(decode(t, w)["id"].(float64))
	base := "/api/v1/offerings/" + utils.Int64ToStr(offeringID)

	w = s.do(t, http.MethodPost, base+"/prices", admin, gin.H{
		"name": "base", "display_name": "通常料金", "price": "5000", "start_date": "2024-01-01T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, base+"/prices", admin, gin.H{
		"name": "sale", "display_name": "セール", "price": "4000", "is_limited_sale": true, "before_sale_price": "5000",
		"start_date": "2024-06-01T00:00:00Z", "end_date": "2024-06-30T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, "SALE: (5000) -> 4000", created["price_summary"])

	w = s.do(t, http.MethodGet, "/api/v1/offerings/private-lesson", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode(t, w)
	info, ok := view["price_info"].(map[string]interface{})
	require.True(t, ok, w.Body.String())
	assert.Equal(t, "4000", info["pretax_price"])
	assert.Equal(t, "4400", info["posttax_price"])
	assert.Equal(t, "5500", info["before_sale_posttax_price"])
	assert.Equal(t, true, info["is_sale"])

	w = s.do(t, http.MethodGet, "/api/v1/offerings?type=class", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["total"])

	w = s.do(t, http.MethodPost, "/api/v1/price-summaries/recompute", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["updated"])

	w = s.do(t, http.MethodDelete, base+"/prices/999", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOperatorRoutesRequireRole(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/tax-rates", "", gin.H{"name": "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/tax-rates", "garbage", gin.H{"name": "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/tax-rates", token(t, 5, utils.RoleUser), gin.H{"name": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/offerings/none", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAccountEventsAndOwnContact(t *testing.T) {
	s := newTestServer(t)
	service := token(t, 0, utils.RoleService)

	w := s.do(t, http.MethodPost, "/api/v1/accounts/42/created", service, gin.H{"email": "user@example.com"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/accounts/42/email-changed", service, gin.H{"email": "new@example.com"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	emails := decode(t, w)["contact_emails"].([]interface{})
	assert.Len(t, emails, 2)

	w = s.do(t, http.MethodPost, "/api/v1/accounts/42/created", token(t, 42, utils.RoleUser), gin.H{"email": "user@example.com"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/accounts/abc/created", service, gin.H{"email": "user@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	user := token(t, 42, utils.RoleUser)
	w = s.do(t, http.MethodPut, "/api/v1/contacts/me", user, gin.H{"name": "<b>佐藤</b>", "name_en": "Sato"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "&lt;b&gt;佐藤&lt;/b&gt;", decode(t, w)["name"])

	w = s.do(t, http.MethodGet, "/api/v1/contacts/me", token(t, 77, utils.RoleUser), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/contacts/1", user, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAccountEventsSafeIPs(t *testing.T) {
	s := newTestServer(t, "10.0.0.5")
	service := token(t, 0, utils.RoleService)

	w := s.do(t, http.MethodPost, "/api/v1/accounts/1/created", service, gin.H{"email": "user@example.com"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts/1/created", bytes.NewBufferString(`{"email":"user@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+service)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.5")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
