package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/demoparse/internal/config"
	"github.com/annel0/demoparse/internal/logging"
	"github.com/annel0/demoparse/internal/observability"
	"github.com/annel0/demoparse/internal/protocol"
	"github.com/annel0/demoparse/internal/storage"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config (default: $DEMO_CONFIG)")
		dump       = flag.String("dump", "", "Packet ids to print as JSON (comma-separated)")
		events     = flag.Bool("events", false, "Print game events as JSON")
		combat     = flag.Int("combatlog", 0, "Show the last N combat log entries")
		workers    = flag.Int("workers", 0, "Files parsed in parallel")
		metrics    = flag.Int("metrics", 0, "Serve Prometheus /metrics on this port")
		noCache    = flag.Bool("no-cache", false, "Ignore the summary cache")
		quiet      = flag.Bool("q", false, "Print only summaries")
	)
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: demoinfo [flags] file.dem...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if *metrics > 0 {
		cfg.Metrics.Port = *metrics
	}

	parserLog, err := setupLogging(cfg, *quiet)
	if err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	require, err := parseIDs(*dump)
	if err != nil {
		log.Fatalf("❌ Неверный список -dump: %v", err)
	}
	for _, id := range cfg.Parser.Require {
		require = append(require, protocol.PacketID(id))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, cfg.Telemetry.GetService())
		if err != nil {
			logging.Error("Ошибка инициализации OpenTelemetry: %v", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	r := &runner{
		maxEntities: cfg.Parser.GetMaxEntities(),
		require:     require,
		events:      *events,
		combatlog:   *combat,
		log:         parserLog,
		out:         os.Stdout,
	}
	if port := cfg.Metrics.GetPort(); port > 0 {
		r.metrics = observability.NewParserMetrics(nil)
		srv := observability.StartHTTP(fmt.Sprintf(":%d", port))
		defer srv.Close()
	}
	if dir := cfg.Cache.GetDir(); dir != "" && !*noCache {
		cache, err := storage.NewSummaryCache(dir)
		if err != nil {
			logging.Warn("Кэш сводок отключён: %v", err)
		} else {
			r.cache = cache
			defer cache.Close()
		}
	}

	started := time.Now()
	results := run(ctx, r, flag.Args(), cfg.GetWorkers())

	failed := 0
	for _, res := range results {
		printResult(os.Stdout, res)
		if res.Err != nil {
			failed++
		}
	}
	printProcess(os.Stdout, time.Since(started))

	if failed > 0 {
		logging.Error("Не удалось разобрать файлов: %d из %d", failed, len(results))
		os.Exit(1)
	}
}

// setupLogging настраивает глобальный логгер и логгер разбора по конфигурации
func setupLogging(cfg *config.Config, quiet bool) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if quiet {
		level = logging.ERROR
	}

	if cfg.Logging.File {
		if err := logging.InitDefaultLogger("demoinfo"); err != nil {
			return nil, err
		}
		logging.GetLoggerManager().EnableFiles(true)
	} else {
		logging.SetDefaultLogger(logging.NewConsoleLogger("demoinfo", os.Stderr))
	}

	l := logging.GetComponentLogger("parser")
	l.SetLevel(level, logging.TRACE)
	return l, nil
}

// run разбирает файлы не более чем в workers горутинах; порядок результатов совпадает с paths
func run(ctx context.Context, r *runner, paths []string, workers int) []result {
	results := make([]result, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, path := range paths {
		g.Go(func() error {
			results[i] = r.summarize(gctx, path)
			return nil
		})
	}
	g.Wait()
	return results
}

func parseIDs(s string) ([]protocol.PacketID, error) {
	var ids []protocol.PacketID
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", part, err)
		}
		ids = append(ids, protocol.PacketID(id))
	}
	return ids, nil
}

func printResult(w io.Writer, res result) {
	if res.Err != nil {
		fmt.Fprintf(w, "%s: ошибка: %v\n", res.Path, res.Err)
		return
	}
	s := res.Summary
	source := "разобран"
	if res.Cached {
		source = "из кэша"
	}

	fmt.Fprintf(w, "%s (%s, %s)\n", res.Path, humanize.Bytes(uint64(s.Size)), source)
	fmt.Fprintf(w, "  карта:     %s\n", s.MapName)
	fmt.Fprintf(w, "  сервер:    %s (сборка %d)\n", s.ServerName, s.BuildNum)
	fmt.Fprintf(w, "  тиков:     %s (последний %d)\n", humanize.Comma(int64(s.Ticks)), s.LastTick)
	fmt.Fprintf(w, "  кадров:    %s\n", humanize.Comma(int64(s.Frames)))
	fmt.Fprintf(w, "  сущностей: %s, классов %d\n", humanize.Comma(int64(s.Entities)), s.Classes)
	fmt.Fprintf(w, "  таблицы:   %s\n", strings.Join(s.Tables, ", "))
	if s.Packets > 0 {
		fmt.Fprintf(w, "  сообщений: %s\n", humanize.Comma(int64(s.Packets)))
	}
	if s.GameEvents > 0 {
		fmt.Fprintf(w, "  событий:   %s\n", humanize.Comma(int64(s.GameEvents)))
	}
	if s.Errors > 0 {
		fmt.Fprintf(w, "  пропущено ошибок: %d\n", s.Errors)
	}
	fmt.Fprintf(w, "  разобран %s за %.2fс\n", humanize.Time(s.ParsedAt), s.Duration)
	if len(res.CombatLog) > 0 {
		fmt.Fprintf(w, "  журнал боя:\n")
		for _, line := range res.CombatLog {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
}
