package parser

import "github.com/annel0/demoparse/internal/logging"

// Diagnostics счетчики разбора, включая пропущенные восстановимые ошибки
type Diagnostics struct {
	Frames     int
	Messages   int // внутренние сообщения всех пакетов
	Dispatched int // сообщения, переданные наблюдателю
	GameEvents int // игровые события, переданные наблюдателю
	Ticks      int

	MalformedPackets       int
	UnknownEntities        int
	FieldErrors            int
	BaselineFieldErrors    int
	SkippedFullPackets     int
	DroppedEntityPackets   int // PacketEntities до ENTITY_ACTIVE
	AbandonedEntityPackets int // PacketEntities, прерванные на неразрешимом пути поля
	UnknownGameEvents      int // события с идентификатором не из списка
}

// Recoverable сумма всех пропущенных ошибок
func (d Diagnostics) Recoverable() int {
	return d.MalformedPackets + d.UnknownEntities + d.FieldErrors + d.BaselineFieldErrors + d.UnknownGameEvents
}

// Diagnostics снимок счетчиков
func (p *Parser) Diagnostics() Diagnostics {
	d := p.diag
	st := p.entities.Stats()
	d.UnknownEntities = st.UnknownEntities
	d.FieldErrors = st.FieldErrors
	d.SkippedFullPackets = st.SkippedFull
	d.AbandonedEntityPackets = st.AbandonedPackets
	d.BaselineFieldErrors = p.classes.BaselineFieldErrors()
	return d
}

// malformed учитывает повреждённое сообщение и пишет его в лог
func (p *Parser) malformed(what string, err error, data []byte) {
	p.diag.MalformedPackets++
	p.metrics.Recoverable("malformed_packet")
	p.log.Warn("Тик %d: %v", p.tick, err)
	p.log.Debug("%s:\n%s", what, logging.HexDump(data))
}
