package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shadowd/server/internal/command"
	"github.com/shadowd/server/internal/config"
	"github.com/shadowd/server/internal/console"
	"github.com/shadowd/server/internal/core/event"
	coresys "github.com/shadowd/server/internal/core/system"
	"github.com/shadowd/server/internal/core/timer"
	"github.com/shadowd/server/internal/data"
	"github.com/shadowd/server/internal/handler"
	"github.com/shadowd/server/internal/health"
	"github.com/shadowd/server/internal/illusion"
	gonet "github.com/shadowd/server/internal/net"
	"github.com/shadowd/server/internal/net/packet"
	"github.com/shadowd/server/internal/persist"
	"github.com/shadowd/server/internal/scripting"
	"github.com/shadowd/server/internal/system"
	"github.com/shadowd/server/internal/world"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// Version is reported by the paranoia command.
const Version = "0.3.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string) {
	fmt.Println()
	fmt.Println("\033[35;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Printf("\033[35;1m  │\033[0m              shadowd  v%-6s             \033[35;1m│\033[0m\n", Version)
	fmt.Println("\033[35;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1m伺服器:\033[0m %s\n\n", serverName)
}

// displayWidth counts CJK characters as two columns.
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
	cfgPath := flag.String("config", "config/shadowd.toml", "path to the TOML config file")
	flag.Parse()
	if p := os.Getenv("SHADOWD_CONFIG"); p != "" {
		*cfgPath = p
	}

	// 1. Load config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Server.Version = Version
	store := config.NewStore(*cfgPath, cfg)

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name)

	// 3. Data and scripts
	printSection("資料載入")
	lights, err := data.LoadLightTable(cfg.Data.LightZones)
	if err != nil {
		return fmt.Errorf("light zones: %w", err)
	}
	printStat("光照區域", lights.Count())

	lua, err := scripting.NewEngine(cfg.Data.ScriptsDir, log)
	if err != nil {
		return fmt.Errorf("scripts: %w", err)
	}
	defer lua.Close()
	if hasLight, hasExempt := lua.Hooks(); hasLight || hasExempt {
		printOK(fmt.Sprintf("Lua 腳本已載入 (light=%t exempt=%t)", hasLight, hasExempt))
	}
	fmt.Println()

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(rootCtx)

	// 4. Journal (optional)
	var journal *persist.JournalWriter
	if cfg.Database.DSN != "" {
		printSection("資料庫")
		dbCtx, dbCancel := context.WithTimeout(ctx, 30*time.Second)
		db, err := persist.NewDB(dbCtx, cfg.Database, log)
		if err != nil {
			dbCancel()
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL 連線成功")
		err = persist.RunMigrations(dbCtx, db.Pool)
		dbCancel()
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK("資料庫遷移完成")
		fmt.Println()
		journal = persist.NewJournalWriter(persist.NewJournalRepo(db), cfg.Database.JournalBuffer, log)
	}

	// 5. World and illusion service
	ws := world.NewState()
	bus := event.NewBus()
	timers := timer.NewQueue(time.Now)
	tickRate := cfg.Network.TickRate
	monitor := health.NewMonitor(float64(time.Second)/float64(tickRate), func() float64 {
		return store.Current().Global.MinTPS
	})

	var transport illusion.Transport
	if cfg.Shadow.Transport {
		transport = handler.NewPacketTransport(ws)
	}
	seed := time.Now().UnixNano()
	svc := illusion.NewService(illusion.ServiceDeps{
		Directory: ws,
		Locator:   ws,
		Light:     lua.Light(lights),
		Health:    monitor,
		Exempt:    lua,
		Transport: transport,
		Timers:    timers,
		Settings:  func() illusion.Settings { return system.SettingsFrom(store.Current()) },
		ScanRand:  rand.New(rand.NewSource(seed)),
		LoopRand:  rand.New(rand.NewSource(seed + 1)),
		QueueSize: cfg.Shadow.QueueSize,
		Log:       log,
	})
	system.BindLifecycleEvents(svc.Registry(), bus, func(id int32) string {
		if p := ws.GetByID(id); p != nil {
			return p.Name
		}
		return ""
	}, nil)

	reload := func() error {
		_, cfgErr := store.Reload()
		return errors.Join(cfgErr, lights.Reload(), lua.Reload())
	}
	commands := command.NewDispatcher(command.Deps{
		Illusions: svc,
		Health:    monitor,
		Store:     store,
		Reload:    reload,
		Observers: ws.PlayerCount,
		Log:       log,
	})

	// 6. Packet handlers
	pktReg := packet.NewRegistry(log)
	handler.RegisterAll(pktReg, &handler.Deps{
		Config:   store,
		Log:      log,
		World:    ws,
		Commands: commands,
		Bus:      bus,
	})

	// 7. Network server
	netServer, err := gonet.NewServer(cfg.Network.BindAddress, gonet.SessionOptions{
		InQueue:      cfg.Network.InQueueSize,
		OutQueue:     cfg.Network.OutQueueSize,
		PerSecond:    cfg.Network.PacketsPerSecond,
		WriteTimeout: cfg.Network.WriteTimeout,
	}, log)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}
	g.Go(netServer.AcceptLoop)
	g.Go(func() error {
		return svc.Scanner().Run(ctx, func() time.Duration { return store.Current().Shadow.ScanInterval })
	})
	if journal != nil {
		g.Go(func() error { return journal.Run(ctx) })
	}

	// 8. Systems
	sessions := gonet.NewSessionStore()
	runner := coresys.NewRunner()
	runner.Register(system.NewInputSystem(netServer, pktReg, sessions, cfg.Network.MaxPacketsPerTick, ws, svc, bus, log))
	runner.Register(system.NewEventSystem(bus))
	runner.Register(system.NewIllusionSystem(svc, nil))
	runner.Register(system.NewSnapshotSystem(ws))
	runner.Register(system.NewOutputSystem(sessions))
	runner.Register(system.NewHealthSystem(monitor, nil))
	if journal != nil {
		runner.Register(system.NewJournalSystem(bus, journal))
	}

	var con *console.Server
	if cfg.Console.PasswordHash != "" {
		con, err = console.New(cfg.Console.BindAddress, cfg.Console.PasswordHash, log)
		if err != nil {
			netServer.Shutdown()
			return fmt.Errorf("console: %w", err)
		}
		g.Go(func() error { return con.Serve(ctx) })
		runner.Register(system.NewConsoleSystem(con.Requests(), commands))
	}

	// 9. Game loop
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()

	printSection("伺服器就緒")
	printReady(fmt.Sprintf("監聽位址 %s", netServer.Addr().String()))
	if con != nil {
		printReady(fmt.Sprintf("控制台 %s", con.Addr().String()))
	}
	mode := "封包"
	if svc.Degraded() {
		mode = "僅邏輯"
	}
	printReady(fmt.Sprintf("遊戲迴圈啟動 (tick: %s, 幻影模式: %s)", tickRate, mode))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(tickRate)
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				if err := reload(); err != nil {
					log.Warn("重新載入失敗", zap.Error(err))
				} else {
					log.Info("設定已重新載入")
				}
				continue
			}
			log.Info("收到關閉信號", zap.String("signal", sig.String()))
			return shutdown(runner, svc, sessions, netServer, cancel, g, tickRate, log)
		case <-ctx.Done():
			log.Error("背景工作異常終止")
			return shutdown(runner, svc, sessions, netServer, cancel, g, tickRate, log)
		}
	}
}

// shutdown closes every live illusion, lets the closing messages and journal
// rows go out, then stops the background goroutines.
func shutdown(runner *coresys.Runner, svc *illusion.Service, sessions *gonet.SessionStore,
	netServer *gonet.Server, cancel context.CancelFunc, g *errgroup.Group, tickRate time.Duration, log *zap.Logger) error {
	closed := svc.Shutdown()
	runner.TickPhase(coresys.PhaseOutput, tickRate)
	runner.TickPhase(coresys.PhasePreUpdate, tickRate)
	runner.TickPhase(coresys.PhasePersist, tickRate)
	log.Info("幻影已全部關閉", zap.Int("count", closed))

	waitFlushed(sessions, 2*time.Second)
	netServer.Shutdown()
	cancel()
	err := g.Wait()
	sessions.ForEach(func(sess *gonet.Session) { sess.Close() })
	log.Info("伺服器已停止")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// waitFlushed gives writer goroutines up to limit to drain their queues.
func waitFlushed(sessions *gonet.SessionStore, limit time.Duration) {
	deadline := time.Now().Add(limit)
	for time.Now().Before(deadline) {
		pending := 0
		sessions.ForEach(func(sess *gonet.Session) {
			if !sess.IsClosed() {
				pending += len(sess.OutQueue)
			}
		})
		if pending == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
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
