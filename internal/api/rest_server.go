package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/voxelight/internal/auth"
	"github.com/annel0/voxelight/internal/engine"
	"github.com/annel0/voxelight/internal/logging"
	"github.com/annel0/voxelight/internal/middleware"
	"github.com/annel0/voxelight/internal/network"
	"github.com/annel0/voxelight/internal/storage"
)

// Version - версия API, отдаётся в /api/server/info
const Version = "v0.3.0"

// RestServer представляет REST API сервер
type RestServer struct {
	router     *gin.Engine
	httpServer *http.Server
	engine     *engine.Engine
	repo       storage.SnapshotRepo
	files      *storage.FileStore
	worldFile  string
	tokens     *auth.TokenManager
	operators  *auth.OperatorStore
	hub        *network.Hub
	webhooks   *OutboundWebhookManager
	metrics    *ServerMetrics
	logger     *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port      string                  // Адрес прослушивания, например ":8088"
	Engine    *engine.Engine          // Обязателен
	Repo      storage.SnapshotRepo    // nil - эндпоинты снимков отвечают 503
	Files     *storage.FileStore      // nil - сохранение в файл недоступно
	WorldFile string                  // Имя файла мира в Files
	Tokens    *auth.TokenManager      // Обязателен
	Operators *auth.OperatorStore     // nil - пустое хранилище
	Hub       *network.Hub            // nil - /ws/chunks не регистрируется
	Webhooks  *OutboundWebhookManager // nil - управление webhook'ами недоступно
	Registry  *prometheus.Registry    // nil - регистры по умолчанию
	Logger    *logging.Logger
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) (*RestServer, error) {
	if config.Engine == nil {
		return nil, errors.New("REST сервер требует движок мира")
	}
	if config.Tokens == nil {
		return nil, errors.New("REST сервер требует менеджер токенов")
	}
	if config.Port == "" {
		config.Port = ":8088"
	}
	if config.Operators == nil {
		config.Operators = auth.NewOperatorStore()
	}
	if config.Logger == nil {
		config.Logger = logging.GetAPILogger()
	}

	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware("voxelight"))
	router.Use(middleware.NewRequestLogger(config.Logger).Handler())

	promMw := middleware.NewPrometheusMiddleware("voxelight", config.Registry)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	router.Use(corsMiddleware())

	rs := &RestServer{
		router:    router,
		engine:    config.Engine,
		repo:      config.Repo,
		files:     config.Files,
		worldFile: config.WorldFile,
		tokens:    config.Tokens,
		operators: config.Operators,
		hub:       config.Hub,
		webhooks:  config.Webhooks,
		metrics:   NewServerMetrics(),
		logger:    config.Logger,
	}
	rs.httpServer = &http.Server{
		Addr:              config.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	rs.setupRoutes()
	return rs, nil
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	if rs.hub != nil {
		rs.router.GET("/ws/chunks", gin.WrapF(rs.hub.HandleConnection))
	}

	api := rs.router.Group("/api")

	// Открытые эндпоинты: чтение мира
	api.POST("/auth/login", rs.handleLogin)
	api.GET("/server/info", rs.handleServerInfo)
	api.GET("/world", rs.handleWorldInfo)
	api.GET("/blocks", rs.handleBlocks)
	api.GET("/voxel", rs.handleGetVoxel)
	api.GET("/light", rs.handleGetLight)
	api.POST("/raycast", rs.handleRaycast)
	api.GET("/chunks/:cx/:cy/:cz", rs.handleGetChunk)
	api.GET("/snapshots", rs.handleListSnapshots)
	api.GET("/webhooks/events", rs.handleGetWebhookEventTypes)

	// Изменение мира (требуют JWT)
	protected := api.Group("")
	protected.Use(rs.jwtMiddleware())
	{
		protected.PUT("/voxel", rs.handleSetVoxel)
		protected.POST("/voxel/place", rs.handlePlaceVoxel)
		protected.DELETE("/voxel", rs.handleBreakVoxel)
		protected.POST("/raycast/place", rs.handleRaycastPlace)
		protected.POST("/raycast/break", rs.handleRaycastBreak)
		protected.POST("/chunks/drain", rs.handleDrainModified)
		protected.POST("/world/save", rs.handleSaveWorld)
		protected.POST("/world/save-file", rs.handleSaveWorldFile)

		// Административные эндпоинты (только для админов)
		admin := protected.Group("")
		admin.Use(rs.adminMiddleware())
		{
			admin.POST("/world/load", rs.handleLoadWorld)
			admin.POST("/world/load-file", rs.handleLoadWorldFile)
			admin.POST("/world/relight", rs.handleRelight)
			admin.DELETE("/snapshots/:id", rs.handleDeleteSnapshot)

			if rs.webhooks != nil {
				admin.GET("/admin/webhooks", rs.handleGetOutboundWebhooks)
				admin.POST("/admin/webhooks", rs.handleCreateOutboundWebhook)
				admin.DELETE("/admin/webhooks/:id", rs.handleDeleteOutboundWebhook)
			}
		}
	}
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Handler возвращает HTTP-обработчик сервера
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// Start запускает REST сервер и блокируется до Stop
func (rs *RestServer) Start() error {
	rs.logger.Info("🌐 REST API слушает %s", rs.httpServer.Addr)
	if err := rs.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop плавно останавливает сервер, дожидаясь текущих запросов
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.httpServer.Shutdown(ctx)
}
