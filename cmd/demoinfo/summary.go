package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/annel0/demoparse/internal/combatlog"
	"github.com/annel0/demoparse/internal/gameevent"
	"github.com/annel0/demoparse/internal/logging"
	"github.com/annel0/demoparse/internal/observability"
	"github.com/annel0/demoparse/internal/parser"
	"github.com/annel0/demoparse/internal/protocol"
	"github.com/annel0/demoparse/internal/storage"
)

// runner разбирает файлы и собирает сводки; безопасен для параллельных вызовов summarize
type runner struct {
	maxEntities int
	require     []protocol.PacketID
	events      bool                  // печатать игровые события
	combatlog   int                   // сколько последних записей журнала боя показать
	cache       *storage.SummaryCache // nil без кэша
	metrics     *observability.ParserMetrics
	log         *logging.Logger

	mu  sync.Mutex
	out io.Writer // JSON-дамп запрошенных сообщений
}

// result сводка одного файла
type result struct {
	Path      string
	Summary   *storage.Summary
	CombatLog []string // последние записи журнала боя с именами
	Cached    bool
	Err       error
}

// summarize возвращает сводку из кэша или разбирает файл.
// С запрошенными сообщениями, событиями или журналом боя кэш не используется:
// их нужно напечатать.
func (r *runner) summarize(ctx context.Context, path string) result {
	res := result{Path: path}

	hash, size, err := storage.HashFile(path)
	if err != nil {
		res.Err = err
		return res
	}

	useCache := r.cache != nil && len(r.require) == 0 && !r.events && r.combatlog == 0
	if useCache {
		s, err := r.cache.Load(hash)
		switch {
		case err == nil:
			r.log.Debug("%s: сводка из кэша", path)
			res.Summary, res.Cached = s, true
			return res
		case !errors.Is(err, storage.ErrNotFound):
			r.log.Warn("%s: кэш недоступен: %v", path, err)
		}
	}

	s, log, err := r.parse(ctx, path)
	if err != nil {
		res.Err = err
		return res
	}
	s.Hash, s.Size = hash, size
	res.Summary, res.CombatLog = s, log

	if useCache {
		if err := r.cache.Save(s); err != nil {
			r.log.Warn("%s: не удалось сохранить сводку: %v", path, err)
		}
	}
	return res
}

func (r *runner) parse(ctx context.Context, path string) (*storage.Summary, []string, error) {
	started := time.Now()

	p, err := parser.OpenFile(path,
		parser.WithMaxEntities(r.maxEntities),
		parser.WithMetrics(r.metrics),
		parser.WithLogger(r.log),
	)
	if err != nil {
		return nil, nil, err
	}
	defer p.Close()

	d := &dumper{r: r, p: p, path: path, dump: make(map[protocol.PacketID]bool)}
	for _, id := range r.require {
		d.dump[id] = true
	}
	if err := p.Require(r.require...); err != nil {
		return nil, nil, err
	}
	if r.combatlog > 0 {
		d.combat = combatlog.NewLog(r.combatlog)
		if err := p.Require(protocol.DOTACombatLogDataHLTV); err != nil {
			return nil, nil, err
		}
	}
	if err := p.ParseAll(ctx, d); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	diag := p.Diagnostics()
	s := &storage.Summary{
		Ticks:      diag.Ticks,
		Frames:     diag.Frames,
		LastTick:   p.Tick(),
		Entities:   p.Entities().Len(),
		Classes:    p.Classes().Len(),
		Tables:     p.StringTables().Names(),
		Packets:    diag.Dispatched,
		GameEvents: diag.GameEvents,
		Errors:     diag.Recoverable(),
		ParsedAt:   started.UTC(),
		Duration:   time.Since(started).Seconds(),
	}
	if h, ok := p.FileHeader(); ok {
		s.MapName, s.ServerName, s.BuildNum = h.MapName, h.ServerName, h.BuildNum
	}

	var lines []string
	if d.combat != nil {
		for _, e := range d.combat.Entries() {
			lines = append(lines, formatCombatEntry(e, e.Resolve(p.StringTables())))
		}
	}
	return s, lines, nil
}

func formatCombatEntry(e combatlog.Entry, n combatlog.Names) string {
	line := fmt.Sprintf("[%.2f] %s", e.Timestamp, e.Type)
	if n.Attacker != "" {
		line += " " + n.Attacker
	}
	if n.Target != "" {
		line += " -> " + n.Target
	}
	if n.Inflictor != "" {
		line += " (" + n.Inflictor + ")"
	}
	if e.Value != 0 {
		line += fmt.Sprintf(" %d", e.Value)
	}
	return line
}

// dumper печатает запрошенные сообщения строками JSON и собирает журнал боя
type dumper struct {
	parser.NopObserver
	r      *runner
	p      *parser.Parser
	path   string
	dump   map[protocol.PacketID]bool
	combat *combatlog.Log // nil без -combatlog
}

func (d *dumper) OnPacket(pkt *protocol.Packet) error {
	if d.combat != nil && pkt.ID == protocol.DOTACombatLogDataHLTV {
		if _, err := d.combat.Add(pkt.Raw); err != nil {
			d.r.log.Debug("%s: запись журнала боя пропущена: %v", d.path, err)
		}
	}
	if !d.dump[pkt.ID] {
		return nil
	}

	data, err := pkt.JSON()
	if err != nil {
		// схема не зарегистрирована, печатаем только размер
		data = []byte(fmt.Sprintf(`{"raw_bytes":%d}`, len(pkt.Raw)))
	}

	d.r.mu.Lock()
	defer d.r.mu.Unlock()
	if d.r.out == nil {
		return nil
	}
	_, err = fmt.Fprintf(d.r.out, "%s\t%d\t%s\t%s\n", d.path, d.p.Tick(), pkt.Name, data)
	return err
}

func (d *dumper) OnGameEvent(ev *gameevent.Event) error {
	if !d.r.events {
		return nil
	}
	data, err := json.Marshal(ev.Map())
	if err != nil {
		return err
	}

	d.r.mu.Lock()
	defer d.r.mu.Unlock()
	if d.r.out == nil {
		return nil
	}
	_, err = fmt.Fprintf(d.r.out, "%s\t%d\t%s\t%s\n", d.path, d.p.Tick(), ev.Name(), data)
	return err
}
