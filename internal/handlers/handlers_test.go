package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"go-ops-dashboard/internal/cache"
	"go-ops-dashboard/internal/database"
	"go-ops-dashboard/internal/finance"
	"go-ops-dashboard/internal/models"
	"go-ops-dashboard/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type page[T any] struct {
	Data []T           `json:"data"`
	Meta database.Meta `json:"meta"`
}

type env struct {
	router  *gin.Engine
	cache   *cache.Memory
	admin   string
	manager string
	staff   string
}

func uintPath(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func setup(t *testing.T, opts Options) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	testutil.SetupDB(t)

	mem := cache.NewMemory()
	opts.Cache = mem
	if opts.CacheTTL == 0 {
		opts.CacheTTL = time.Minute
	}
	if opts.UploadsDir == "" {
		opts.UploadsDir = t.TempDir()
	}
	return &env{
		router:  NewRouter(opts),
		cache:   mem,
		admin:   testutil.Token(t, testutil.CreateUser(t, "alice", models.RoleAdmin)),
		manager: testutil.Token(t, testutil.CreateUser(t, "mona", models.RoleManager)),
		staff:   testutil.Token(t, testutil.CreateUser(t, "sami", models.RoleStaff)),
	}
}

func (e *env) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return testutil.Request(t, e.router, method, path, token, body)
}

func TestLoginAndMe(t *testing.T) {
	e := setup(t, Options{})

	w := e.do(t, http.MethodPost, "/login", "", gin.H{"username": "alice", "password": "secret123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	login := testutil.Decode[struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}](t, w)
	assert.Equal(t, models.RoleAdmin, login.Role)

	w = e.do(t, http.MethodGet, "/api/me", login.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", testutil.Decode[models.User](t, w).Username)

	w = e.do(t, http.MethodPost, "/login", "", gin.H{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", testutil.Decode[errorBody](t, w).Code)

	w = e.do(t, http.MethodPost, "/login", "", gin.H{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegistrationFlag(t *testing.T) {
	e := setup(t, Options{})
	w := e.do(t, http.MethodPost, "/register", "", gin.H{"username": "newbie", "password": "longenough"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	e = setup(t, Options{AllowRegistration: true})
	w = e.do(t, http.MethodPost, "/register", "", gin.H{"username": "newbie", "password": "longenough"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, models.RoleStaff, testutil.Decode[models.User](t, w).Role)

	w = e.do(t, http.MethodPost, "/register", "", gin.H{"username": "newbie", "password": "longenough"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRoleGuards(t *testing.T) {
	e := setup(t, Options{})
	product := testutil.CreateProduct(t, "MUG-1", "4", "10", 5)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		status int
	}{
		{"anonymous", http.MethodGet, "/api/products", "", http.StatusUnauthorized},
		{"staff reads catalog", http.MethodGet, "/api/products", e.staff, http.StatusOK},
		{"staff cannot see dashboard", http.MethodGet, "/api/dashboard", e.staff, http.StatusForbidden},
		{"manager sees dashboard", http.MethodGet, "/api/dashboard", e.manager, http.StatusOK},
		{"manager cannot delete", http.MethodDelete, "/api/products/" + uintPath(product.ID), e.manager, http.StatusForbidden},
		{"manager cannot read audit", http.MethodGet, "/api/audit", e.manager, http.StatusForbidden},
		{"admin reads audit", http.MethodGet, "/api/audit", e.admin, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, tt.method, tt.path, tt.token, nil)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestProductEndpoints(t *testing.T) {
	e := setup(t, Options{})

	w := e.do(t, http.MethodPost, "/api/products", e.manager, gin.H{
		"sku": "TSHIRT-M", "name": "T-shirt M", "category": "Apparel",
		"cost_price": "4", "sell_price": "12.5", "warehouse_qty": 5, "low_stock_threshold": 2,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	product := testutil.Decode[models.Product](t, w)
	assert.Equal(t, "USD", product.Currency)
	path := "/api/products/" + uintPath(product.ID)

	w = e.do(t, http.MethodPost, "/api/products", e.manager, gin.H{"sku": "TSHIRT-M", "name": "Again"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_EXISTS", testutil.Decode[errorBody](t, w).Code)

	w = e.do(t, http.MethodPost, "/api/products", e.manager, gin.H{"sku": "X", "name": "X", "currency": "XYZ"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", testutil.Decode[errorBody](t, w).Code)

	w = e.do(t, http.MethodPost, path+"/restock", e.manager, gin.H{"quantity": 3, "note": "supplier"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 8, testutil.Decode[models.Product](t, w).WarehouseQty)

	w = e.do(t, http.MethodPost, path+"/adjust", e.manager, gin.H{"delta": -10, "note": "count"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INSUFFICIENT_STOCK", testutil.Decode[errorBody](t, w).Code)

	w = e.do(t, http.MethodPut, path, e.manager, gin.H{"sell_price": "14"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decimal.NewFromInt(14).Equal(testutil.Decode[models.Product](t, w).SellPrice))

	w = e.do(t, http.MethodGet, "/api/products?search=shirt&page_size=5", e.staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := testutil.Decode[page[models.Product]](t, w)
	assert.Len(t, list.Data, 1)
	assert.Equal(t, 5, list.Meta.PageSize)

	w = e.do(t, http.MethodGet, "/api/products/categories", e.staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"Apparel"}, testutil.Decode[[]string](t, w))

	w = e.do(t, http.MethodGet, "/api/products/abc", e.staff, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodDelete, path, e.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodGet, path, e.staff, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOrderFlowThroughAPI(t *testing.T) {
	e := setup(t, Options{})
	product := testutil.CreateProduct(t, "MUG-1", "4", "10", 20)
	agent := testutil.CreateAgent(t, "Karim", "1.50")
	customer := testutil.CreateCustomer(t, "Sara", "0600000001")
	agentPath := "/api/agents/" + uintPath(agent.ID)

	// 1. Consign stock to the agent
	w := e.do(t, http.MethodPost, agentPath+"/stock", e.manager, gin.H{"product_id": product.ID, "type": "ASSIGN", "quantity": 5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.do(t, http.MethodPost, agentPath+"/stock", e.manager, gin.H{"product_id": product.ID, "type": "DISPATCH", "quantity": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code, "dispatch only comes from orders")

	// 2. Staff takes the order
	w = e.do(t, http.MethodPost, "/api/orders", e.staff, gin.H{
		"customer_id": customer.ID, "shipping_fee": "3",
		"items": []gin.H{{"product_id": product.ID, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := testutil.Decode[models.Order](t, w)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.True(t, decimal.NewFromInt(23).Equal(order.Total))
	orderPath := "/api/orders/" + uintPath(order.ID)

	w = e.do(t, http.MethodPost, "/api/orders", e.staff, gin.H{"customer_id": customer.ID, "items": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 3. Walk the status machine
	w = e.do(t, http.MethodPost, orderPath+"/status", e.staff, gin.H{"status": "confirmed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.do(t, http.MethodPost, orderPath+"/status", e.staff, gin.H{"status": "shipped"})
	assert.Equal(t, http.StatusConflict, w.Code, "no agent yet")
	w = e.do(t, http.MethodPost, orderPath+"/status", e.staff, gin.H{"status": "lost"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, orderPath+"/agent", e.staff, gin.H{"agent_id": agent.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.do(t, http.MethodPost, orderPath+"/status", e.staff, gin.H{"status": "shipped"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.do(t, http.MethodPost, orderPath+"/status", e.staff, gin.H{"status": "delivered"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotNil(t, testutil.Decode[models.Order](t, w).DeliveredAt)

	w = e.do(t, http.MethodDelete, orderPath, e.admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code, "delivered orders stay")

	// 4. Agent side
	w = e.do(t, http.MethodGet, agentPath+"/stock", e.manager, nil)
	require.Equal(t, http.StatusOK, w.Code)
	held := testutil.Decode[[]models.AgentStock](t, w)
	require.Len(t, held, 1)
	assert.Equal(t, 3, held[0].Quantity)

	w = e.do(t, http.MethodGet, agentPath+"/reconciliation", e.manager, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"balanced":true`)

	w = e.do(t, http.MethodPost, agentPath+"/payments", e.manager, gin.H{"amount": "10", "note": "cash"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(t, http.MethodGet, agentPath+"/settlement", e.manager, nil)
	require.Equal(t, http.StatusOK, w.Code)
	settlement := testutil.Decode[finance.Settlement](t, w)
	assert.Equal(t, 1, settlement.Delivered)
	// 23 collected - 1.50 commission - 10 paid
	assert.True(t, decimal.RequireFromString("11.5").Equal(settlement.Balance), settlement.Balance.String())

	w = e.do(t, http.MethodGet, "/api/settlements", e.manager, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutil.Decode[[]finance.Settlement](t, w), 1)

	// 5. Reports
	w = e.do(t, http.MethodGet, "/api/reports/summary?period=today", e.manager, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cmp := testutil.Decode[finance.Comparison](t, w)
	assert.True(t, decimal.NewFromInt(23).Equal(cmp.Current.Revenue), cmp.Current.Revenue.String())
	assert.Equal(t, int64(1), cmp.Current.Delivered)

	w = e.do(t, http.MethodGet, "/api/reports/summary?period=fortnight", e.manager, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/api/orders?status=delivered", e.staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutil.Decode[page[models.Order]](t, w).Data, 1)

	w = e.do(t, http.MethodGet, "/api/orders/reference/"+order.Reference, e.staff, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/api/customers/"+uintPath(customer.ID), e.staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := testutil.Decode[database.CustomerDetail](t, w)
	assert.Len(t, detail.RecentOrders, 1)
}

func TestDashboardIsCached(t *testing.T) {
	e := setup(t, Options{})
	ctx := context.Background()

	w := e.do(t, http.MethodGet, "/api/dashboard?period=7d", e.manager, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, ok, err := e.cache.Get(ctx, "dashboard:7d::")
	require.NoError(t, err)
	assert.True(t, ok)

	w = e.do(t, http.MethodPost, "/api/expenses", e.manager, gin.H{"category": "ADS", "amount": "50"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	_, ok, _ = e.cache.Get(ctx, "dashboard:7d::")
	assert.False(t, ok, "writes drop cached dashboards")

	w = e.do(t, http.MethodGet, "/api/dashboard?period=7d", e.manager, nil)
	require.Equal(t, http.StatusOK, w.Code)
	dashboard := testutil.Decode[database.Dashboard](t, w)
	assert.True(t, decimal.NewFromInt(50).Equal(dashboard.Comparison.Current.AdSpend))
}

func TestDeletesDropCachedDashboard(t *testing.T) {
	e := setup(t, Options{})
	ctx := context.Background()
	customer := testutil.CreateCustomer(t, "Sara", "0600000001")
	agent := testutil.CreateAgent(t, "Idle", "1.00")

	for _, path := range []string{"/api/customers/" + uintPath(customer.ID), "/api/agents/" + uintPath(agent.ID)} {
		w := e.do(t, http.MethodGet, "/api/dashboard?period=7d", e.manager, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		_, ok, err := e.cache.Get(ctx, "dashboard:7d::")
		require.NoError(t, err)
		require.True(t, ok)

		w = e.do(t, http.MethodDelete, path, e.admin, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		_, ok, _ = e.cache.Get(ctx, "dashboard:7d::")
		assert.False(t, ok, "DELETE %s drops cached dashboards", path)
	}
}

func TestTrendPeriodLimits(t *testing.T) {
	e := setup(t, Options{})

	w := e.do(t, http.MethodGet, "/api/reports/trend?period=custom&from=0001-01-01&to=9999-12-31", e.manager, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", testutil.Decode[errorBody](t, w).Code)

	w = e.do(t, http.MethodGet, "/api/reports/trend?period=custom&from=2020-01-01&to=2021-12-31", e.manager, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "two years of days")

	w = e.do(t, http.MethodGet, "/api/reports/trend?period=custom&from=2020-01-01&to=2021-12-31&granularity=month", e.manager, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := testutil.Decode[struct {
		Points []finance.TrendPoint `json:"points"`
	}](t, w)
	assert.Len(t, body.Points, 24)
}

func TestExpenseValidation(t *testing.T) {
	e := setup(t, Options{})

	w := e.do(t, http.MethodPost, "/api/expenses", e.manager, gin.H{"category": "FOOD", "amount": "5"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, testutil.Decode[errorBody](t, w).Error, "expense_category")

	w = e.do(t, http.MethodPost, "/api/expenses", e.manager, gin.H{"category": "RENT", "amount": "0"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/api/expenses?category=FOOD", e.manager, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/api/expenses", e.staff, gin.H{"category": "RENT", "amount": "5"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestExportReport(t *testing.T) {
	e := setup(t, Options{})
	_, err := database.CreateExpense(context.Background(), 0, database.ExpenseInput{
		Category: models.ExpenseRent, Amount: decimal.NewFromInt(900), Description: "May",
	})
	require.NoError(t, err)

	w := e.do(t, http.MethodGet, "/api/reports/export?dataset=expenses", e.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "expenses.csv")
	assert.Contains(t, w.Body.String(), "RENT,900.00,USD")

	w = e.do(t, http.MethodGet, "/api/reports/export?dataset=summary&period=this_month&format=xlsx", e.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "spreadsheetml")
	assert.Equal(t, "PK", w.Body.String()[:2], "xlsx is a zip archive")

	w = e.do(t, http.MethodGet, "/api/reports/export?dataset=orders&format=pdf", e.admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/api/reports/export?dataset=orders&from=yesterday", e.admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRatesAndAudit(t *testing.T) {
	e := setup(t, Options{})

	w := e.do(t, http.MethodPut, "/api/rates/eur", e.admin, gin.H{"rate": "1.1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, http.MethodPut, "/api/rates/USD", e.admin, gin.H{"rate": "2"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/api/rates", e.staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"currency":"EUR"`)

	w = e.do(t, http.MethodGet, "/api/audit?entity=exchange_rate", e.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries := testutil.Decode[page[models.AuditLog]](t, w)
	require.Len(t, entries.Data, 1)
	assert.Equal(t, "set_rate", entries.Data[0].Action)
}

func TestUsersAdmin(t *testing.T) {
	e := setup(t, Options{})
	bob := testutil.CreateUser(t, "bob", models.RoleStaff)

	w := e.do(t, http.MethodPut, "/api/users/"+uintPath(bob.ID)+"/role", e.admin, gin.H{"role": "manager"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.RoleManager, testutil.Decode[models.User](t, w).Role)

	w = e.do(t, http.MethodPut, "/api/users/"+uintPath(bob.ID)+"/role", e.admin, gin.H{"role": "owner"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/api/users", e.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutil.Decode[[]models.User](t, w), 4)
}

func upload(t *testing.T, e *env, filename string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG fake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+e.manager)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestUploadImage(t *testing.T) {
	e := setup(t, Options{BaseURL: "https://shop.example"})

	w := upload(t, e, "notes.txt")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = upload(t, e, "mug.PNG")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	url := testutil.Decode[struct {
		URL string `json:"url"`
	}](t, w).URL
	assert.Regexp(t, `^https://shop\.example/uploads/[0-9a-f-]{36}\.png$`, url)
}

func TestHealthAndAssistant(t *testing.T) {
	e := setup(t, Options{})

	w := e.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "online")

	w = e.do(t, http.MethodPost, "/api/ask", e.admin, gin.H{"message": "How are sales?"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = e.do(t, http.MethodPost, "/api/ask", e.manager, gin.H{"message": "How are sales?"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}
