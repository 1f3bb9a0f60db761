package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/annel0/voxelight/internal/api"
	"github.com/annel0/voxelight/internal/auth"
	"github.com/annel0/voxelight/internal/config"
	"github.com/annel0/voxelight/internal/engine"
	"github.com/annel0/voxelight/internal/eventbus"
	"github.com/annel0/voxelight/internal/lighting"
	"github.com/annel0/voxelight/internal/logging"
	"github.com/annel0/voxelight/internal/network"
	"github.com/annel0/voxelight/internal/observability"
	"github.com/annel0/voxelight/internal/storage"
	"github.com/annel0/voxelight/internal/terrain"
	"github.com/annel0/voxelight/internal/world/block"
)

func main() {
	configPath := flag.String("config", "", "Путь к YAML конфигурации (по умолчанию VOXEL_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	if err := logging.InitDefaultLogger("server", cfg.Logging.Dir); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	level, _ := logging.ParseLevel(cfg.Logging.Level) // Уровень уже проверен в Validate
	logging.SetLevel(level)
	logging.GetLoggerManager().SetDirectory(cfg.Logging.Dir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Error("❌ %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
	logging.Info("👋 Сервер успешно остановлен")
}

func run(ctx context.Context, cfg *config.Config) error {
	logging.Info("🎮 Запуск voxelight: мир %s %dx%dx%d чанков", cfg.World.Name, cfg.World.Width, cfg.World.Height, cfg.World.Depth)

	// === ТРАССИРОВКА ===
	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, observability.Options{
			ServiceName: "voxelight",
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return fmt.Errorf("ошибка инициализации OpenTelemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logging.Warn("⚠️ Ошибка остановки OpenTelemetry: %v", err)
			}
		}()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// === ШИНА СОБЫТИЙ ===
	bus, err := openBus(cfg.EventBus)
	if err != nil {
		return err
	}
	defer bus.Close()
	eventbus.Init(bus)

	busMetrics := eventbus.NewMetricsExporter(bus, registry)
	busMetrics.Start()
	defer busMetrics.Stop()

	if sub, err := eventbus.StartLoggingListener(bus); err != nil {
		logging.Warn("⚠️ Логирование событий шины недоступно: %v", err)
	} else {
		defer sub.Unsubscribe()
	}

	// === МИР ===
	catalog := block.DefaultCatalog()
	if cfg.BlocksFile != "" {
		if catalog, err = block.LoadCatalogYAML(cfg.BlocksFile); err != nil {
			return fmt.Errorf("ошибка загрузки каталога блоков: %w", err)
		}
		logging.Info("🧱 Каталог блоков %s: %d типов", cfg.BlocksFile, catalog.Len())
	}

	source, err := terrain.New(terrain.Options{
		Kind:      terrain.Kind(cfg.World.Terrain.Kind),
		Seed:      cfg.World.Terrain.Seed,
		Ground:    cfg.World.Terrain.Ground,
		Amplitude: cfg.World.Terrain.Amplitude,
	})
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.Options{
		Name:    cfg.World.Name,
		Width:   cfg.World.Width,
		Height:  cfg.World.Height,
		Depth:   cfg.World.Depth,
		Source:  source,
		Catalog: catalog,
		Metrics: lighting.NewMetrics(registry),
		Bus:     bus,
	})
	if err != nil {
		return fmt.Errorf("ошибка создания мира: %w", err)
	}

	// === ХРАНИЛИЩЕ ===
	repo, err := storage.Open(ctx, storage.Options{
		Backend: storage.Backend(cfg.Storage.Backend),
		DataDir: filepath.Join(cfg.Storage.DataDir, "snapshots"),
		Redis: &storage.RedisConfig{
			Addr:      cfg.Storage.Redis.Addr,
			Password:  cfg.Storage.Redis.Password,
			DB:        cfg.Storage.Redis.DB,
			KeyPrefix: cfg.Storage.Redis.KeyPrefix,
			TTL:       cfg.Storage.Redis.TTL(),
		},
		MariaDSN: cfg.Storage.MariaDSN,
	})
	if err != nil {
		return fmt.Errorf("ошибка открытия хранилища снимков: %w", err)
	}
	defer repo.Close()

	files := storage.NewFileStore(cfg.Storage.DataDir)

	if cfg.Storage.LoadOnStart {
		meta, err := eng.Load(ctx, repo, "")
		switch {
		case errors.Is(err, storage.ErrSnapshotNotFound):
			logging.Info("📂 Снимков мира %s нет, используется сгенерированный ландшафт", eng.Name())
		case err != nil:
			return fmt.Errorf("ошибка восстановления мира: %w", err)
		default:
			logging.Info("📂 Мир восстановлен из снимка %s от %s", meta.ID, meta.CreatedAt.Format(time.RFC3339))
		}
	}

	// === ДОСТУП ===
	tokens, err := auth.NewTokenManager(cfg.Server.JWTSecret, cfg.Server.TokenTTL())
	if err != nil {
		return err
	}
	if cfg.Server.JWTSecret == "" {
		logging.Warn("⚠️ jwt_secret не задан: токены действительны до перезапуска")
	}

	operators := auth.NewOperatorStore()
	for _, op := range cfg.Server.Operators {
		if _, err := operators.Add(op.Name, op.PasswordHash, op.Admin); err != nil {
			return fmt.Errorf("оператор %s: %w", op.Name, err)
		}
	}
	if len(cfg.Server.Operators) == 0 {
		logging.Warn("⚠️ Операторы не настроены: изменение мира через API недоступно")
	}

	// === ПОТОКИ И API ===
	hub := network.NewHub(nil)
	go hub.Run(ctx)
	if _, err := hub.AttachBus(ctx, bus); err != nil {
		return fmt.Errorf("ошибка подписки WebSocket-хаба: %w", err)
	}

	webhooks := api.NewOutboundWebhookManager(eng.Name(), nil)
	go webhooks.Run(ctx)
	if _, err := webhooks.AttachBus(ctx, bus); err != nil {
		return fmt.Errorf("ошибка подписки webhook'ов: %w", err)
	}

	go eng.RunModifiedFeed(ctx, cfg.Server.StreamInterval())

	restPort := fmt.Sprintf(":%d", cfg.Server.GetRESTPort())
	rest, err := api.NewRestServer(api.Config{
		Port:      restPort,
		Engine:    eng,
		Repo:      repo,
		Files:     files,
		WorldFile: cfg.Storage.WorldFile,
		Tokens:    tokens,
		Operators: operators,
		Hub:       hub,
		Webhooks:  webhooks,
		Registry:  registry,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- rest.Start() }()

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🌐 REST API: http://localhost%s", restPort)
	logging.Info("   📡 Поток чанков: ws://localhost%s/ws/chunks", restPort)
	logging.Info("   ❤️  Health check: http://localhost%s/health", restPort)

	select {
	case <-ctx.Done():
		logging.Info("📡 Получен сигнал завершения, останавливаем сервисы...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("REST API остановлен: %w", err)
		}
	}

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := rest.Stop(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}

	if cfg.Storage.WorldFile != "" {
		if err := eng.SaveFile(files, cfg.Storage.WorldFile); err != nil {
			logging.Error("❌ Ошибка записи файла мира: %v", err)
		} else {
			logging.Info("💾 Мир записан в %s", files.Path(cfg.Storage.WorldFile))
		}
	}
	if _, err := eng.Save(shutdownCtx, repo); err != nil {
		logging.Error("❌ Ошибка сохранения снимка при остановке: %v", err)
	}
	return nil
}

// openBus выбирает JetStream при заданном URL, иначе шину в памяти
func openBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	if cfg.URL == "" {
		logging.Info("📨 Шина событий в памяти (буфер %d)", cfg.Buffer)
		return eventbus.NewMemoryBus(cfg.Buffer), nil
	}

	bus, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, cfg.RetentionDuration())
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к JetStream: %w", err)
	}
	logging.Info("📨 Шина событий JetStream %s, стрим %s", cfg.URL, cfg.Stream)
	return bus, nil
}
