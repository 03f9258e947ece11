package parser

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/annel0/demoparse/internal/bitstream"
	"github.com/annel0/demoparse/internal/demo"
	"github.com/annel0/demoparse/internal/entity"
	"github.com/annel0/demoparse/internal/observability"
	"github.com/annel0/demoparse/internal/protocol"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ParseAll разбирает поток до конца или до остановки.
//
// Порядок уведомлений: состояние INIT, затем для каждого тика сообщения в
// порядке прихода, после применения всех пакетов тика уведомления о
// сущностях, прогресс и завершение тика. Остановка (ErrStop из наблюдателя
// или отмена ctx) дочитывает уже запланированные уведомления тика, переводит
// парсер в FINISHED и возвращает nil (или ctx.Err() при отмене контекста).
// Фатальная ошибка возвращается без дальнейших уведомлений.
func (p *Parser) ParseAll(ctx context.Context, obs Observer) (err error) {
	if p.state == StateFinished {
		return ErrParserFinished
	}
	if p.running {
		return ErrInParse
	}
	if obs == nil {
		obs = NopObserver{}
	}
	p.obs = obs
	p.eventObs, _ = obs.(GameEventObserver)
	p.running = true
	defer func() { p.running = false }()

	ctx, span := observability.Tracer().Start(ctx, "parser.ParseAll", trace.WithAttributes(
		attribute.String("demo.session", p.id.String()),
		attribute.Int64("demo.size", p.demo.Size()),
	))
	done := p.metrics.Started()
	defer func() {
		done(p.demo.Position())
		d := p.Diagnostics()
		span.SetAttributes(
			attribute.Int("demo.ticks", d.Ticks),
			attribute.Int("demo.frames", d.Frames),
			attribute.Int("demo.recoverable_errors", d.Recoverable()),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	p.log.Info("Начат разбор %s", p.id)
	// после Seek фазы уже пройдены; наблюдатель всё равно видит их по порядку
	for s := StateInit; s <= p.state; s++ {
		if err := p.call(obs.OnState(s)); err != nil {
			return p.fail(err)
		}
	}

	var ctxErr error
	for !p.stop {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			p.stop = true
			break
		}
		last, err := p.step()
		if err != nil {
			return p.fail(err)
		}
		if last {
			break
		}
	}

	if p.tickPending {
		if err := p.finishTick(); err != nil {
			return p.fail(err)
		}
	}
	if err := p.enter(StateFinished); err != nil {
		return p.fail(err)
	}

	d := p.Diagnostics()
	p.log.Info("Разбор %s завершён: тиков %d, кадров %d, пропущено ошибок %d", p.id, d.Ticks, d.Frames, d.Recoverable())
	return ctxErr
}

// fail прекращает разбор без уведомления наблюдателя
func (p *Parser) fail(err error) error {
	p.state = StateFinished
	p.log.Error("Разбор %s прерван на тике %d: %v", p.id, p.tick, err)
	return err
}

// step читает и применяет один кадр. last == true после DEM_Stop или конца потока.
func (p *Parser) step() (last bool, err error) {
	f, err := p.demo.Next()
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	if p.tickPending && f.Tick != p.tick {
		if err := p.finishTick(); err != nil {
			return false, err
		}
		if p.stop {
			return true, nil
		}
	}
	p.tick = f.Tick
	p.tickPending = true
	p.diag.Frames++
	p.metrics.Frame(f.Kind.String())

	if f.Kind == demo.KindStop {
		return true, nil
	}
	return false, p.handleFrame(f)
}

// finishTick доставляет уведомления о сущностях, прогресс и завершение тика
func (p *Parser) finishTick() error {
	p.tickPending = false

	for _, n := range p.entities.Flush() {
		p.metrics.EntityEvent(n.Event.String())
		if err := p.call(p.obs.OnEntity(n.Event, n.Entity)); err != nil {
			return err
		}
	}

	if size := p.demo.Size(); size > 0 {
		pct := float64(p.demo.Position()) / float64(size) * 100
		p.progress = min(max(p.progress, pct), 100)
	}
	if err := p.call(p.obs.OnProgress(p.progress)); err != nil {
		return err
	}

	p.diag.Ticks++
	p.metrics.Tick()
	return p.call(p.obs.OnTick(p.tick))
}

func (p *Parser) handleFrame(f *demo.Frame) error {
	if f.Kind != demo.KindFileHeader {
		if err := p.enter(StatePreEntity); err != nil {
			return err
		}
	}

	switch f.Kind {
	case demo.KindFileHeader:
		h := &protocol.FileHeader{}
		if err := h.Unmarshal(f.Payload); err != nil {
			p.malformed(f.Kind.String(), fmt.Errorf("%s: %w", f.Kind, err), f.Payload)
		} else {
			p.header = h
			p.log.Info("Карта %s, сервер %q, сборка %d", h.MapName, h.ServerName, h.BuildNum)
		}
		return p.enter(StatePreEntity)

	case demo.KindSendTables:
		if p.haveSchemas {
			return nil
		}
		var st protocol.SendTables
		if err := st.Unmarshal(f.Payload); err != nil {
			return fmt.Errorf("%s: %w", f.Kind, err)
		}
		r := bitstream.NewReader(st.Data)
		raw := r.ReadBytes(int(r.ReadVarUint32()))
		if err := r.Err(); err != nil {
			return fmt.Errorf("%s: %w", f.Kind, err)
		}
		return p.loadSchemas(raw)

	case demo.KindClassInfo:
		var ci protocol.ClassInfo
		if err := ci.Unmarshal(f.Payload); err != nil {
			return fmt.Errorf("%s: %w", f.Kind, err)
		}
		if err := p.classes.HandleClassInfo(&ci); err != nil {
			return err
		}
		p.log.Debug("Загружено классов: %d (%d бит)", p.classes.Len(), p.classes.ClassBits())
		return nil

	case demo.KindSyncTick:
		return p.enter(StateEntityActive)

	case demo.KindStringTables:
		var st protocol.StringTables
		if err := st.Unmarshal(f.Payload); err != nil {
			p.malformed(f.Kind.String(), fmt.Errorf("%s: %w", f.Kind, err), f.Payload)
			return nil
		}
		p.tables.HandleSnapshot(&st)
		return nil

	case demo.KindSignonPacket:
		return p.handleDemoPacket(f)

	case demo.KindPacket:
		if err := p.enter(StateEntityActive); err != nil {
			return err
		}
		return p.handleDemoPacket(f)

	case demo.KindFullPacket:
		if err := p.enter(StateEntityActive); err != nil {
			return err
		}
		var fp protocol.FullPacket
		if err := fp.Unmarshal(f.Payload); err != nil {
			p.malformed(f.Kind.String(), fmt.Errorf("%s: %w", f.Kind, err), f.Payload)
			return nil
		}
		if fp.StringTables != nil {
			p.tables.HandleSnapshot(fp.StringTables)
		}
		if fp.Packet != nil {
			return p.handleMessages(fp.Packet.Data)
		}
	}
	return nil
}

func (p *Parser) loadSchemas(raw []byte) error {
	var fs protocol.FlattenedSerializer
	if err := fs.Unmarshal(raw); err != nil {
		return fmt.Errorf("ошибка разбора схем: %w", err)
	}
	if err := p.classes.HandleSerializers(&fs); err != nil {
		return err
	}
	p.haveSchemas = true
	p.log.Debug("Загружено сериализаторов: %d", len(fs.Serializers))
	return nil
}

func (p *Parser) handleDemoPacket(f *demo.Frame) error {
	var pkt protocol.DemoPacket
	if err := pkt.Unmarshal(f.Payload); err != nil {
		p.malformed(f.Kind.String(), fmt.Errorf("%s: %w", f.Kind, err), f.Payload)
		return nil
	}
	return p.handleMessages(pkt.Data)
}

// handleMessages перебирает внутренние сообщения пакета в порядке прихода
func (p *Parser) handleMessages(data []byte) error {
	mr := protocol.NewMessageReader(data)
	for !p.stop {
		id, size, ok := mr.Next()
		if !ok {
			break
		}
		p.diag.Messages++

		engine := protocol.IsEngineMessage(id)
		required := p.required[id] && !p.seeking
		event := id == protocol.GELegacyGameEvent && p.eventObs != nil && !p.seeking
		if !engine && !required && !event {
			mr.Skip(size)
			continue
		}
		payload := mr.Read(size)

		if engine {
			if err := p.handleEngine(id, payload); err != nil {
				return err
			}
		}
		if event {
			if err := p.handleGameEvent(payload); err != nil {
				return err
			}
		}
		if required {
			if err := p.dispatch(id, payload); err != nil {
				return err
			}
		}
	}
	if err := mr.Err(); err != nil {
		p.malformed("CDemoPacket", err, data)
	}
	return nil
}

// dispatch декодирует запрошенное сообщение и передаёт его наблюдателю
func (p *Parser) dispatch(id protocol.PacketID, payload []byte) error {
	pkt, err := p.packets.Decode(id, payload)
	if err != nil {
		p.malformed(protocol.PacketName(id), err, payload)
		return nil
	}
	p.diag.Dispatched++
	p.metrics.Packet(pkt.Name)
	return p.call(p.obs.OnPacket(pkt))
}

// handleGameEvent разбирает событие по списку и передаёт его наблюдателю
func (p *Parser) handleGameEvent(payload []byte) error {
	var msg protocol.GameEvent
	if err := msg.Unmarshal(payload); err != nil {
		p.malformed(protocol.PacketName(protocol.GELegacyGameEvent),
			&protocol.MalformedPacketError{ID: protocol.GELegacyGameEvent, Err: err}, payload)
		return nil
	}
	ev, err := p.events.Decode(&msg)
	if err != nil {
		p.diag.UnknownGameEvents++
		p.metrics.Recoverable("unknown_game_event")
		p.log.Debug("Тик %d: %v", p.tick, err)
		return nil
	}
	p.diag.GameEvents++
	return p.call(p.eventObs.OnGameEvent(ev))
}

// handleEngine сообщения, которые парсер обрабатывает сам
func (p *Parser) handleEngine(id protocol.PacketID, payload []byte) error {
	switch id {
	case protocol.SvcServerInfo:
		si := &protocol.ServerInfo{}
		if err := si.Unmarshal(payload); err != nil {
			p.malformed(protocol.PacketName(id), &protocol.MalformedPacketError{ID: id, Err: err}, payload)
			return nil
		}
		p.serverInfo = si

	case protocol.SvcFlattenedSerializer:
		if p.haveSchemas {
			return nil
		}
		return p.loadSchemas(payload)

	case protocol.SvcCreateStringTable:
		var msg protocol.CreateStringTable
		if err := msg.Unmarshal(payload); err != nil {
			p.malformed(protocol.PacketName(id), &protocol.MalformedPacketError{ID: id, Err: err}, payload)
			return nil
		}
		if _, err := p.tables.HandleCreate(&msg); err != nil {
			p.malformed(protocol.PacketName(id), err, payload)
		}

	case protocol.SvcUpdateStringTable:
		var msg protocol.UpdateStringTable
		if err := msg.Unmarshal(payload); err != nil {
			p.malformed(protocol.PacketName(id), &protocol.MalformedPacketError{ID: id, Err: err}, payload)
			return nil
		}
		if _, err := p.tables.HandleUpdate(&msg); err != nil {
			p.malformed(protocol.PacketName(id), err, payload)
		}

	case protocol.SvcClearAllStringTables:
		p.tables.Clear()

	case protocol.GELegacyGameEventList:
		var msg protocol.GameEventList
		if err := msg.Unmarshal(payload); err != nil {
			p.malformed(protocol.PacketName(id), &protocol.MalformedPacketError{ID: id, Err: err}, payload)
			return nil
		}
		p.events.Load(&msg)
		p.log.Debug("Загружено описаний игровых событий: %d", p.events.Len())

	case protocol.SvcPacketEntities:
		if p.state < StateEntityActive {
			p.diag.DroppedEntityPackets++
			return nil
		}
		var msg protocol.PacketEntities
		if err := msg.Unmarshal(payload); err != nil {
			p.malformed(protocol.PacketName(id), &protocol.MalformedPacketError{ID: id, Err: err}, payload)
			return nil
		}
		before, baseline := p.entities.Stats(), p.classes.BaselineFieldErrors()
		err := p.entities.ReadPacketEntities(&msg)
		p.recordEntityStats(before, baseline)
		if entity.IsRecoverable(err) {
			return nil
		}
		return err
	}
	return nil
}

// recordEntityStats переносит прирост счетчиков хранилища в метрики
func (p *Parser) recordEntityStats(before entity.Stats, baseline int) {
	after := p.entities.Stats()
	p.metrics.RecoverableN("unknown_entity", after.UnknownEntities-before.UnknownEntities)
	p.metrics.RecoverableN("field_error", after.FieldErrors-before.FieldErrors)
	p.metrics.RecoverableN("baseline_field_error", p.classes.BaselineFieldErrors()-baseline)
	p.metrics.RecoverableN("abandoned_entity_packet", after.AbandonedPackets-before.AbandonedPackets)
}
