// Package parser ведёт разбор демо-файла: читает кадры, раскладывает сообщения
// по таблицам строк, реестру классов и хранилищу сущностей и уведомляет
// наблюдателя по тикам.
package parser

import (
	"fmt"
	"io"
	"os"

	"github.com/annel0/demoparse/internal/classes"
	"github.com/annel0/demoparse/internal/demo"
	"github.com/annel0/demoparse/internal/entity"
	"github.com/annel0/demoparse/internal/gameevent"
	"github.com/annel0/demoparse/internal/logging"
	"github.com/annel0/demoparse/internal/observability"
	"github.com/annel0/demoparse/internal/protocol"
	"github.com/annel0/demoparse/internal/stringtable"
	"github.com/google/uuid"
)

// Parser одна сессия разбора одного потока.
// Не потокобезопасен: все вызовы из одной горутины.
type Parser struct {
	id     uuid.UUID
	log    *logging.Logger
	closer io.Closer

	demo     *demo.Reader
	packets  *protocol.Registry
	tables   *stringtable.Manager
	classes  *classes.Registry
	entities *entity.Store
	events   *gameevent.List
	metrics  *observability.ParserMetrics

	maxEntities int
	required    map[protocol.PacketID]bool

	obs         Observer
	eventObs    GameEventObserver // nil, если наблюдателю не нужны игровые события
	state       State
	stop        bool
	running     bool
	seeking     bool
	tick        int32
	tickPending bool
	progress    float64
	haveSchemas bool
	seekIdx     *seekIndex

	header     *protocol.FileHeader
	serverInfo *protocol.ServerInfo
	diag       Diagnostics
}

// Option настройка парсера
type Option func(*Parser)

// WithMaxEntities предел индекса сущности
func WithMaxEntities(n int) Option {
	return func(p *Parser) { p.maxEntities = n }
}

// WithMetrics включает Prometheus-метрики
func WithMetrics(m *observability.ParserMetrics) Option {
	return func(p *Parser) { p.metrics = m }
}

// WithPacketRegistry заменяет реестр схем сообщений
func WithPacketRegistry(r *protocol.Registry) Option {
	return func(p *Parser) { p.packets = r }
}

// WithLogger задаёт логгер сессии
func WithLogger(l *logging.Logger) Option {
	return func(p *Parser) { p.log = l }
}

// Open проверяет заголовок потока и готовит сессию разбора
func Open(src io.ReadSeeker, opts ...Option) (*Parser, error) {
	p := &Parser{
		id:       uuid.New(),
		required: make(map[protocol.PacketID]bool),
		obs:      NopObserver{},
		tick:     -1,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logging.GetComponentLogger("parser")
	}
	if p.packets == nil {
		p.packets = protocol.NewRegistry()
	}

	r, err := demo.NewReader(src)
	if err != nil {
		return nil, err
	}
	p.demo = r

	p.tables = stringtable.NewManager()
	p.classes = classes.NewRegistry()
	p.tables.OnChange(p.classes.HandleBaselineEntry)
	p.entities = entity.NewStore(p.classes, p.maxEntities)
	p.events = gameevent.NewList()

	p.log.Debug("Открыт поток %s: %d байт", p.id, r.Size())
	return p, nil
}

// OpenFile открывает демо-файл с диска; Close закрывает его
func OpenFile(path string, opts ...Option) (*Parser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия %s: %w", path, err)
	}
	p, err := Open(f, opts...)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.closer = f
	return p, nil
}

// Close освобождает источник, открытый через OpenFile
func (p *Parser) Close() error {
	if p.closer == nil {
		return nil
	}
	err := p.closer.Close()
	p.closer = nil
	return err
}

// Require подписывает наблюдателя на сообщения с указанными идентификаторами.
// Остальные сообщения пропускаются без декодирования.
func (p *Parser) Require(ids ...protocol.PacketID) error {
	if p.state == StateFinished {
		return ErrParserFinished
	}
	for _, id := range ids {
		p.required[id] = true
	}
	return nil
}

// ID идентификатор сессии разбора
func (p *Parser) ID() uuid.UUID { return p.id }

// State текущая фаза
func (p *Parser) State() State { return p.state }

// Tick текущий тик (-1 до начала игры)
func (p *Parser) Tick() int32 { return p.tick }

// Progress последнее сообщённое значение прогресса, 0..100
func (p *Parser) Progress() float64 { return p.progress }

// FileHeader заголовок демо-файла, если он уже прочитан
func (p *Parser) FileHeader() (*protocol.FileHeader, bool) {
	return p.header, p.header != nil
}

// ServerInfo параметры сервера, если они уже пришли
func (p *Parser) ServerInfo() (*protocol.ServerInfo, bool) {
	return p.serverInfo, p.serverInfo != nil
}

// FileInfo итоговая информация из конца файла; позиция разбора не меняется
func (p *Parser) FileInfo() (*protocol.FileInfo, error) {
	f, err := p.demo.ReadFileInfo()
	if err != nil {
		return nil, err
	}
	var info protocol.FileInfo
	if err := info.Unmarshal(f.Payload); err != nil {
		return nil, fmt.Errorf("ошибка разбора %s: %w", demo.KindFileInfo, err)
	}
	return &info, nil
}

// ClassName имя класса по идентификатору или пустая строка
func (p *Parser) ClassName(classID int32) string {
	return p.classes.ClassName(classID)
}

// Classes реестр классов сессии
func (p *Parser) Classes() *classes.Registry { return p.classes }

// StringTables таблицы строк сессии
func (p *Parser) StringTables() *stringtable.Manager { return p.tables }

// Entities хранилище сущностей сессии
func (p *Parser) Entities() *entity.Store { return p.entities }

// GameEvents описания игровых событий из GE_Source1LegacyGameEventList
func (p *Parser) GameEvents() *gameevent.List { return p.events }
