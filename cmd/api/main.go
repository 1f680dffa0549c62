package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.opentelemetry.io/otel/trace"

	"clubshop/pkg/finalize"
	"clubshop/pkg/gateway"
	"clubshop/pkg/inventory"
	"clubshop/pkg/logger"
	"clubshop/pkg/notify"
	"clubshop/pkg/otel"
	"clubshop/pkg/record"
	pgrepo "clubshop/pkg/record/postgres"
	redisrepo "clubshop/pkg/record/redis"
	"clubshop/pkg/shop"
)

// config is read once from the environment and passed down explicitly;
// nothing reads env vars after startup.
type config struct {
	addr     string
	currency string

	gatewayName         string
	successURL          string
	cancelURL           string
	stripeSecretKey     string
	stripeWebhookSecret string
	payrexxInstance     string
	payrexxAPISecret    string
	payrexxWebhookToken string

	inventoryURL   string
	inventoryToken string

	redisAddr   string
	databaseURL string

	sendgridKey   string
	emailFrom     string
	emailFromName string

	otelHost string
}

func configFromEnv() config {
	getenv := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}
	return config{
		addr:                getenv("ADDR", ":8080"),
		currency:            getenv("CURRENCY", "CHF"),
		gatewayName:         getenv("GATEWAY", "payrexx"),
		successURL:          getenv("SUCCESS_URL", "http://localhost:8080/thank-you?sid={CHECKOUT_SESSION_ID}"),
		cancelURL:           getenv("CANCEL_URL", "http://localhost:8080/cancelled"),
		stripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		stripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		payrexxInstance:     os.Getenv("PAYREXX_INSTANCE"),
		payrexxAPISecret:    os.Getenv("PAYREXX_API_SECRET"),
		payrexxWebhookToken: os.Getenv("PAYREXX_WEBHOOK_TOKEN"),
		inventoryURL:        os.Getenv("INVENTORY_URL"),
		inventoryToken:      os.Getenv("INVENTORY_TOKEN"),
		redisAddr:           getenv("REDIS_ADDR", "localhost:6379"),
		databaseURL:         os.Getenv("DATABASE_URL"),
		sendgridKey:         os.Getenv("SENDGRID_API_KEY"),
		emailFrom:           os.Getenv("EMAIL_FROM"),
		emailFromName:       getenv("EMAIL_FROM_NAME", "Club Shop"),
		otelHost:            os.Getenv("OTEL_HOST"),
	}
}

func selectGateway(cfg config) (gateway.Gateway, error) {
	switch cfg.gatewayName {
	case "stripe":
		if cfg.stripeSecretKey == "" || cfg.stripeWebhookSecret == "" {
			return nil, errors.New("missing STRIPE_SECRET_KEY / STRIPE_WEBHOOK_SECRET")
		}
		return gateway.NewStripe(gateway.StripeConfig{
			SecretKey:     cfg.stripeSecretKey,
			WebhookSecret: cfg.stripeWebhookSecret,
		}), nil
	case "payrexx":
		if cfg.payrexxInstance == "" || cfg.payrexxAPISecret == "" {
			return nil, errors.New("missing PAYREXX_INSTANCE / PAYREXX_API_SECRET")
		}
		return gateway.NewPayrexx(gateway.PayrexxConfig{
			Instance:     cfg.payrexxInstance,
			APISecret:    cfg.payrexxAPISecret,
			WebhookToken: cfg.payrexxWebhookToken,
		}), nil
	default:
		return nil, fmt.Errorf("unknown gateway %q", cfg.gatewayName)
	}
}

type server struct {
	cfg     config
	log     *logger.Logger
	gw      gateway.Gateway
	inv     *inventory.Client
	records record.Repository
	fin     *finalize.Finalizer
	tracer  trace.Tracer
}

// @title Club Shop API
// @version 1.0
// @description Checkout, webhook finalization and inventory proxy for the club webshop
// @host localhost:8080
// @BasePath /
func main() {
	cfg := configFromEnv()
	log := logger.New(os.Stdout, logger.LevelInfo, "clubshop", otel.GetTraceID)
	defer log.Sync()
	ctx := context.Background()

	tp, shutdown, err := otel.InitTracing(log, otel.Config{ServiceName: "clubshop", Host: cfg.otelHost, Probability: 1.0})
	if err != nil {
		log.Error(ctx, "init tracing", "error", err)
		os.Exit(1)
	}
	defer shutdown(ctx)

	gw, err := selectGateway(cfg)
	if err != nil {
		log.Error(ctx, "select gateway", "error", err)
		os.Exit(1)
	}

	rdb := goredis.NewClient(&goredis.Options{Addr: cfg.redisAddr})

	var records record.Repository
	if cfg.databaseURL != "" {
		db, err := sql.Open("postgres", cfg.databaseURL)
		if err != nil {
			log.Error(ctx, "db connect", "error", err)
			os.Exit(1)
		}
		if _, err := db.Exec(pgrepo.Schema); err != nil {
			log.Error(ctx, "create table", "error", err)
			os.Exit(1)
		}
		records = pgrepo.New(db)
	} else {
		records = redisrepo.New(rdb)
	}

	inv := inventory.New(inventory.Config{
		BaseURL: cfg.inventoryURL,
		Token:   cfg.inventoryToken,
		Cache:   rdb,
		Log:     log,
	})

	var notifier notify.Notifier
	if cfg.sendgridKey != "" && cfg.emailFrom != "" {
		notifier = notify.NewEmail(cfg.sendgridKey, cfg.emailFrom, cfg.emailFromName)
	}

	s := &server{
		cfg:     cfg,
		log:     log,
		gw:      gw,
		inv:     inv,
		records: records,
		fin:     finalize.New(gw, inv, records, notifier, log),
		tracer:  tp.Tracer("clubshop"),
	}

	r := mux.NewRouter()
	r.Use(s.traceMiddleware)
	r.HandleFunc("/api/checkout", s.checkoutHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/webhook", s.webhookHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/stock", s.stockHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/sku", s.skuHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/stock-delta", s.stockDeltaHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/order-status", s.orderStatusHandler).Methods(http.MethodGet)
	r.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	log.Info(ctx, "listening", "addr", cfg.addr, "gateway", gw.Name())
	if err := http.ListenAndServe(cfg.addr, r); err != nil {
		log.Error(ctx, "server closed", "error", err)
	}
}

func (s *server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.InjectTracing(r.Context(), s.tracer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// checkoutRequest is the UI's checkout initiation payload.
type checkoutRequest struct {
	OrderID  string          `json:"orderId,omitempty"`
	Customer shop.Customer   `json:"customer"`
	Cart     []shop.CartLine `json:"cart"`
}

// checkoutHandler starts a checkout with the configured payment gateway.
// @Summary Start checkout
// @Description Builds a signed gateway request from the cart and returns the redirect URL
// @Accept json
// @Produce json
// @Param checkout body checkoutRequest true "Checkout"
// @Success 200 {object} map[string]string
// @Router /api/checkout [post]
func (s *server) checkoutHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "checkoutHandler")
	defer span.End()

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	lines := shop.Normalize(req.Cart)
	if len(lines) == 0 {
		respondError(w, http.StatusBadRequest, "Empty cart")
		return
	}
	orderID := req.OrderID
	if orderID == "" {
		orderID = uuid.NewString()
	}

	o := shop.Order{
		OrderID:  orderID,
		Currency: s.cfg.currency,
		Lines:    lines,
		Customer: req.Customer,
	}
	co, err := s.gw.CreateCheckout(ctx, o, gateway.ReturnURLs{Success: s.cfg.successURL, Cancel: s.cfg.cancelURL})
	if err != nil {
		if errors.Is(err, shop.ErrInvalidTotal) {
			respondError(w, http.StatusUnprocessableEntity, "Invalid amount")
			return
		}
		s.log.Error(ctx, "create checkout", "order_id", orderID, "error", err)
		respondError(w, http.StatusInternalServerError, "gateway error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": co.URL, "orderId": orderID})
}

// webhookHandler finalizes an order from a payment-provider notification.
// @Summary Payment webhook
// @Description Authenticates the notification and runs the finalization pipeline
// @Accept json
// @Produce json
// @Success 200
// @Failure 401
// @Failure 502
// @Router /api/webhook [post]
func (s *server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "webhookHandler")
	defer span.End()

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	out := s.fin.Run(ctx, r, raw)
	body := map[string]any{"ok": out.Err == nil}
	if out.OrderID != "" {
		body["orderId"] = out.OrderID
	}
	if out.Err != nil {
		body["error"] = out.Err.Error()
	}
	respondJSON(w, out.Code, body)
}

// stockHandler serves the catalog listing, edge-cached for a short TTL.
// @Summary Stock listing
// @Produce json
// @Success 200
// @Router /api/stock [get]
func (s *server) stockHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "stockHandler")
	defer span.End()

	body, status, err := s.inv.Stock(ctx)
	if err != nil {
		s.log.Error(ctx, "fetch stock", "error", err)
		respondError(w, http.StatusBadGateway, "inventory unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// skuHandler looks up one product by sku.
// @Summary SKU lookup
// @Produce json
// @Param sku query string true "SKU"
// @Success 200
// @Router /api/sku [get]
func (s *server) skuHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "skuHandler")
	defer span.End()

	sku := r.URL.Query().Get("sku")
	if sku == "" {
		respondError(w, http.StatusBadRequest, "Missing sku")
		return
	}
	body, status, err := s.inv.SKU(ctx, sku)
	if err != nil {
		s.log.Error(ctx, "fetch sku", "sku", sku, "error", err)
		respondError(w, http.StatusBadGateway, "inventory unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// stockDeltaHandler forwards a stock delta for webhook-less settlement.
// @Summary Direct stock delta
// @Description Forwards {items, idempotencyKey} to the inventory service unchanged
// @Accept json
// @Produce json
// @Success 200
// @Router /api/stock-delta [post]
func (s *server) stockDeltaHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "stockDeltaHandler")
	defer span.End()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if len(body) == 0 {
		// query fallback: ?items=[...]&idempotencyKey=...
		q := r.URL.Query()
		if items := q.Get("items"); items != "" {
			payload := map[string]json.RawMessage{"items": json.RawMessage(items)}
			if idk := q.Get("idempotencyKey"); idk != "" {
				key, _ := json.Marshal(idk)
				payload["idempotencyKey"] = key
			}
			body, _ = json.Marshal(payload)
		}
	}

	out, status, err := s.inv.ForwardDelta(ctx, body)
	if err != nil {
		s.log.Error(ctx, "forward stock delta", "error", err)
		respondError(w, http.StatusBadGateway, "inventory unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(out)
}

// orderStatusHandler reports whether an order has been finalized yet.
// @Summary Order status poll
// @Produce json
// @Param orderId query string true "Order ID"
// @Success 200
// @Router /api/order-status [get]
func (s *server) orderStatusHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "orderStatusHandler")
	defer span.End()

	orderID := r.URL.Query().Get("orderId")
	if orderID == "" {
		respondError(w, http.StatusBadRequest, "Missing orderId")
		return
	}
	rec, err := s.records.Get(ctx, orderID)
	if err != nil {
		if !errors.Is(err, record.ErrNotFound) {
			// a flaky read must look like "not yet", never like a failure
			s.log.Error(ctx, "order status read", "order_id", orderID, "error", err)
		}
		respondJSON(w, http.StatusOK, map[string]any{"found": false, "status": record.StatusPending})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"found":          true,
		"orderId":        rec.OrderID,
		"status":         rec.Status,
		"amountTotal":    rec.AmountTotal,
		"currency":       rec.Currency,
		"transactionRef": rec.TransactionRef,
		"timestamp":      rec.Timestamp,
	})
}
