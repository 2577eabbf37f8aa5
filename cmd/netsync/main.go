package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/l1jgo/netsync/internal/config"
	"github.com/l1jgo/netsync/internal/core/event"
	coresys "github.com/l1jgo/netsync/internal/core/system"
	"github.com/l1jgo/netsync/internal/data"
	"github.com/l1jgo/netsync/internal/handler"
	gonet "github.com/l1jgo/netsync/internal/net"
	"github.com/l1jgo/netsync/internal/net/packet"
	"github.com/l1jgo/netsync/internal/persist"
	"github.com/l1jgo/netsync/internal/scripting"
	"github.com/l1jgo/netsync/internal/system"
	"github.com/l1jgo/netsync/internal/world"
	"github.com/pkg/profile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string, hostMode bool) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m              netsync  v0.1.0              \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m        網路物件同步 · Go 伺服器           \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	mode := "專用伺服器"
	if hostMode {
		mode = "主機模式"
	}
	fmt.Printf("  \033[1m伺服器:\033[0m %s \033[90m(%s)\033[0m\n\n", serverName, mode)
}

// displayWidth counts CJK runes as two columns.
func displayWidth(s string) int {
	w := 0
	for _, r := range s {
		if r > 0x7F {
			w += 2
		} else {
			w++
		}
	}
	return w
}

func printSection(title string) {
	lineLen := 46 - displayWidth(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - displayWidth(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/netsync.toml"
	if p := os.Getenv("NETSYNC_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	if stop := startProfile(cfg.Profile); stop != nil {
		defer stop()
	}

	printBanner(cfg.Server.Name, cfg.Server.HostMode)

	// 3. Optional violation audit store
	var violationWriter system.ViolationWriter
	if cfg.Database.Enabled {
		printSection("資料庫")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL 連線成功")

		version, err := persist.RunMigrations(ctx, db.Pool)
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK(fmt.Sprintf("資料庫遷移完成 (版本 %d)", version))
		fmt.Println()
		violationWriter = persist.NewViolationRepo(db)
	}

	// 4. Prefabs, scenes, scripts
	printSection("資料載入")
	prefabs, err := data.LoadPrefabTable(cfg.Data.PrefabFile)
	if err != nil {
		return fmt.Errorf("load prefab table: %w", err)
	}
	printStat("預製物", prefabs.Count())

	scenes, err := data.LoadSceneTable(cfg.Data.SceneFile)
	if err != nil {
		return fmt.Errorf("load scene table: %w", err)
	}
	printStat("場景", scenes.Count())

	luaEngine, err := scripting.NewEngine(cfg.Scripting.Dir, log)
	if err != nil {
		return fmt.Errorf("lua engine: %w", err)
	}
	defer luaEngine.Close()
	printOK("Lua 腳本載入完成")

	kinds := world.NewKindTable(prefabs, luaEngine.Bind)
	printStat("物件種類", kinds.Count())
	fmt.Println()

	// 5. Replication state
	r := cfg.Replication
	worldState := world.NewState(kinds, r.IDNamespace, r.SequentialIDs, r.RetentionTicks)
	worldState.ServerActive = true

	// 6. Handlers and systems
	bus := event.NewBus()
	deps := &handler.Deps{
		Config: cfg,
		Log:    log,
		World:  worldState,
		Bus:    bus,
	}
	spawnSys := system.NewSpawnSystem(deps)
	dirtySys := system.NewDirtySystem(deps)
	despawnSys := system.NewDespawnSystem(deps, dirtySys)
	observerSys := system.NewObserverSystem(deps)
	predictedSys := system.NewPredictedSystem(deps)
	persistSys := system.NewPersistenceSystem(worldState, violationWriter, log, cfg.Database.FlushInterval)
	deps.Spawner = spawnSys
	deps.Despawner = despawnSys
	deps.Observers = observerSys
	deps.Predicted = predictedSys
	deps.Violations = persistSys
	system.NewSceneSystem(deps, scenes)

	pktReg := packet.NewRegistry(log)
	handler.RegisterAll(pktReg, deps)
	printStat("封包處理器", len(pktReg.Opcodes()))

	// 7. Network
	opts := gonet.SessionOptions{
		InQueueSize:  cfg.Network.InQueueSize,
		OutQueueSize: cfg.Network.OutQueueSize,
		ReadTimeout:  cfg.Network.ReadTimeout,
		WriteTimeout: cfg.Network.WriteTimeout,
	}
	if cfg.RateLimit.Enabled {
		opts.RateLimit = rate.Limit(cfg.RateLimit.PacketsPerSecond)
		opts.Burst = cfg.RateLimit.Burst
	}
	netServer, err := gonet.NewServer(cfg.Network.BindAddress, opts, log)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}
	go netServer.AcceptLoop()
	if addr := cfg.Network.WebSocketAddress; addr != "" {
		go func() {
			if err := netServer.ServeWebSocket(addr, cfg.Network.WebSocketPath); err != nil {
				log.Error("websocket 監聽失敗", zap.Error(err))
			}
		}()
	}

	if cfg.Server.HostMode {
		local := handler.NewLocalClient()
		handler.NewLocalConnection(worldState, local)
		event.Emit(bus, event.ConnectionReady{ConnID: world.LocalConnID})
	}

	store := gonet.NewSessionStore()
	outputSys := system.NewOutputSystem(store)

	runner := coresys.NewRunner()
	runner.Register(system.NewInputSystem(netServer, pktReg, store, deps, cfg.Network.MaxPacketsPerTick))
	runner.Register(system.NewEventSystem(bus))
	runner.Register(dirtySys)
	runner.Register(observerSys)
	runner.Register(outputSys)
	runner.Register(persistSys)
	runner.Register(system.NewCleanupSystem(worldState, despawnSys, log))
	runner.Register(system.NewLedgerSystem(worldState))

	if scene := cfg.Data.StartScene; scene != "" {
		event.Emit(bus, event.SceneLoadStarted{Scene: scene})
		event.Emit(bus, event.SceneLoaded{Scene: scene})
	}

	// 8. Game loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Network.TickRate)
	defer ticker.Stop()

	// Between full ticks the input phase runs at a higher rate, so
	// requests are validated without advancing the simulation clock.
	var pollC <-chan time.Time
	if cfg.Network.InputPollRate > 0 && cfg.Network.InputPollRate < cfg.Network.TickRate {
		poll := time.NewTicker(cfg.Network.InputPollRate)
		defer poll.Stop()
		pollC = poll.C
	}

	printSection("伺服器就緒")
	printReady(fmt.Sprintf("監聽位址 %s", netServer.Addr().String()))
	if cfg.Network.WebSocketAddress != "" {
		printReady(fmt.Sprintf("WebSocket %s%s", cfg.Network.WebSocketAddress, cfg.Network.WebSocketPath))
	}
	printReady(fmt.Sprintf("同步迴圈啟動 (tick: %s)", cfg.Network.TickRate))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			worldState.Clock.Advance()
			runner.Tick(cfg.Network.TickRate)
		case <-pollC:
			runner.TickPhase(coresys.PhaseInput, cfg.Network.InputPollRate)
		case sig := <-shutdownCh:
			log.Info("收到關閉信號", zap.String("signal", sig.String()))
			despawnSys.StopServer()
			outputSys.Update(0)
			persistSys.Flush()
			netServer.Shutdown()
			return nil
		}
	}
}

// startProfile starts pkg/profile in the configured mode and returns its
// stop function, or nil when profiling is off.
func startProfile(cfg config.ProfileConfig) func() {
	var mode func(*profile.Profile)
	switch cfg.Mode {
	case "cpu":
		mode = profile.CPUProfile
	case "mem":
		mode = profile.MemProfile
	case "block":
		mode = profile.BlockProfile
	case "mutex":
		mode = profile.MutexProfile
	default:
		return nil
	}
	opts := []func(*profile.Profile){mode, profile.NoShutdownHook, profile.Quiet}
	if cfg.Dir != "" {
		opts = append(opts, profile.ProfilePath(cfg.Dir))
	}
	return profile.Start(opts...).Stop
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
