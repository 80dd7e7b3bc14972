package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	serviceName        = "factory-service"
	maxDispatchRoadKm  = 30.0
	syncRequestTimeout = 10 * time.Second
	geocoderTimeout    = 5 * time.Second
)

// Config reúne a configuração do serviço lida do ambiente
type Config struct {
	Port             string
	ServiceName      string
	OTelEnabled      bool
	OTelEndpoint     string
	BranchServiceURL string
	BranchSyncMode   string
	DTMServer        string
	SyncPollInterval time.Duration
	SyncMaxAttempts  int
	JWTSecret        []byte
	GeocoderURL      string
	Thresholds       EmergencyThresholds
	WasteBinCapacity decimal.Decimal
}

func loadConfig() Config {
	return Config{
		Port:             getEnv("PORT", "8080"),
		ServiceName:      getEnv("SERVICE_NAME", serviceName),
		OTelEnabled:      getEnv("OTEL_ENABLED", "true") != "false",
		OTelEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		BranchServiceURL: getEnv("BRANCH_SERVICE_URL", "http://localhost:8081"),
		BranchSyncMode:   getEnv("BRANCH_SYNC_MODE", "http"),
		DTMServer:        getEnv("DTM_SERVER", "http://localhost:36789/api/dtmsvr"),
		SyncPollInterval: getEnvDuration("SYNC_POLL_INTERVAL", 2*time.Second),
		SyncMaxAttempts:  getEnvInt("SYNC_MAX_ATTEMPTS", 10),
		JWTSecret:        []byte(getEnv("AUTH_JWT_SECRET", "")),
		GeocoderURL:      getEnv("GEOCODER_URL", ""),
		Thresholds: EmergencyThresholds{
			Low:               getEnvInt("EMERGENCY_LOW_THRESHOLD", 35),
			Reset:             getEnvInt("EMERGENCY_RESET_THRESHOLD", 50),
			MaxRoadDistanceKm: maxDispatchRoadKm,
		},
		WasteBinCapacity: decimal.NewFromInt(int64(getEnvInt("WASTE_BIN_CAPACITY", 1000))),
	}
}

// UseCases agrupa os casos de uso montados sobre o store
type UseCases struct {
	Orders    *OrderUseCase
	Inventory *InventoryUseCase
	Branch    *BranchInventoryUseCase
	WasteBin  *WasteBinUseCase
	Emergency *EmergencyUseCase
	Reports   *ReportUseCase
}

// Store é a união dos repositórios; PostgresStore implementa todos
type Store interface {
	InventoryRepository
	BranchInventoryRepository
	OrderRepository
	SyncOutboxRepository
	WasteBinRepository
	EmergencyRepository
}

func newUseCases(store Store, geocoder Geocoder, cfg Config) *UseCases {
	inventory := NewInventoryUseCase(store)
	branch := NewBranchInventoryUseCase(store)
	return &UseCases{
		Orders:    NewOrderUseCase(store, store, inventory, branch),
		Inventory: inventory,
		Branch:    branch,
		WasteBin:  NewWasteBinUseCase(store, cfg.WasteBinCapacity),
		Emergency: NewEmergencyUseCase(store, geocoder, cfg.Thresholds),
		Reports:   NewReportUseCase(store, store, store, store),
	}
}

func newRouter(uc *UseCases, tracer trace.Tracer, cfg Config) *gin.Engine {
	orderHandler := NewOrderHandler(uc.Orders, uc.Reports, tracer)
	inventoryHandler := NewInventoryHandler(uc.Inventory, uc.Branch, tracer)
	wasteHandler := NewWasteBinHandler(uc.WasteBin, tracer)
	emergencyHandler := NewEmergencyHandler(uc.Emergency, tracer)
	reportHandler := NewReportHandler(uc.Reports, tracer)

	r := gin.Default()
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/health", HealthCheck)

	api := r.Group("/", AuthMiddleware(cfg.JWTSecret))
	// aceitar, mudar status e reciclar exigem papel de gestão quando há token
	managers := RequireRole(RoleFactoryManager, RoleAdmin)

	orders := api.Group("/orders")
	orders.POST("", orderHandler.Submit)
	orders.GET("", orderHandler.List)
	orders.GET("/pending", orderHandler.ListPending)
	orders.GET("/stats", orderHandler.Stats)
	orders.GET("/activities", orderHandler.Activities)
	orders.GET("/:id", orderHandler.Get)
	orders.PUT("/:id/accept", managers, orderHandler.Accept)
	orders.PUT("/:id/status", managers, orderHandler.SetStatus)
	orders.DELETE("/:id", orderHandler.Delete)

	inventory := api.Group("/inventory")
	inventory.GET("", inventoryHandler.List)
	inventory.POST("", inventoryHandler.Create)
	inventory.GET("/stats/overview", inventoryHandler.Overview)
	inventory.POST("/init", inventoryHandler.InitSample)
	inventory.GET("/:id", inventoryHandler.Get)
	inventory.PUT("/:id", inventoryHandler.Update)
	inventory.DELETE("/:id", inventoryHandler.Delete)
	inventory.POST("/:id/stock", inventoryHandler.AdjustStock)

	api.GET("/branch-inventory/:branchId", inventoryHandler.BranchInventory)

	waste := api.Group("/factory-waste-bin")
	waste.GET("", wasteHandler.Get)
	waste.GET("/statistics", wasteHandler.Statistics)
	waste.GET("/history", wasteHandler.History)
	waste.POST("/add-waste", wasteHandler.AddWaste)
	waste.POST("/recycle", managers, wasteHandler.Recycle)

	brigades := api.Group("/brigades/:brigadeId")
	brigades.GET("", emergencyHandler.GetBrigade)
	brigades.PUT("/location", emergencyHandler.RegisterLocation)
	brigades.POST("/water-level", emergencyHandler.ReportWaterLevel)
	api.GET("/emergency-requests", emergencyHandler.ListRequests)

	reports := api.Group("/reports")
	reports.GET("/branches/:branchId", reportHandler.BranchInventory)
	reports.GET("/monthly", reportHandler.Monthly)

	return r
}

func newBranchOrderSyncer(cfg Config) BranchOrderSyncer {
	if cfg.BranchSyncMode == "dtm" {
		log.Printf("ℹ️ Branch sync via DTM messages | DTM=%s", cfg.DTMServer)
		return NewDTMBranchOrderSyncer(cfg.DTMServer, cfg.BranchServiceURL)
	}
	log.Printf("ℹ️ Branch sync via HTTP | BranchService=%s", cfg.BranchServiceURL)
	return NewHTTPBranchOrderSyncer(cfg.BranchServiceURL, syncRequestTimeout)
}

func main() {
	cfg := loadConfig()

	// Initialize OpenTelemetry
	tp, err := initTracer(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	mp, err := initMetrics(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}
	defer func() {
		if err := mp.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down meter: %v", err)
		}
	}()

	dbPool, err := initDB()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbPool.Close()

	store := NewPostgresStore(dbPool)
	if err := store.Migrate(context.Background()); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	var geocoder Geocoder
	if cfg.GeocoderURL != "" {
		geocoder = NewNominatimGeocoder(cfg.GeocoderURL, geocoderTimeout)
	}

	useCases := newUseCases(store, geocoder, cfg)
	router := newRouter(useCases, tp.Tracer(serviceName), cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	drainer := NewSyncDrainer(store, newBranchOrderSyncer(cfg), cfg.SyncPollInterval, cfg.SyncMaxAttempts)
	go drainer.Run(ctx)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		log.Printf("🚀 Factory Service listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("ℹ️ Shutting down factory service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down server: %v", err)
	}
}

func initDB() (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable&pool_max_conns=25&pool_min_conns=5",
		getEnv("DATABASE_USER", "root"),
		getEnv("DATABASE_PASSWORD", "pass"),
		getEnv("DATABASE_HOST", "localhost"),
		getEnv("DATABASE_PORT", "5432"),
		getEnv("DATABASE_NAME", "factory_db"),
	)

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Wait for database to be ready
	for i := 0; i < 30; i++ {
		if err := pool.Ping(ctx); err == nil {
			log.Println("✅ Connected to factory database with connection pool")
			return pool, nil
		}
		log.Printf("⏳ Waiting for database... (%d/30)", i+1)
		time.Sleep(1 * time.Second)
	}

	pool.Close()
	return nil, fmt.Errorf("failed to connect to database after 30 attempts")
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
}

func initTracer(cfg Config) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.OTelEnabled {
		// provider sem exporter: spans são criados e descartados
		tp := sdktrace.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTelEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return tp, nil
}

func initMetrics(cfg Config) (*sdkmetric.MeterProvider, error) {
	ctx := context.Background()

	if !cfg.OTelEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		return mp, nil
	}

	exporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(cfg.OTelEndpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return mp, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}
