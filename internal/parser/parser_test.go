package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/annel0/demoparse/internal/bitstream"
	"github.com/annel0/demoparse/internal/classes"
	"github.com/annel0/demoparse/internal/demo"
	"github.com/annel0/demoparse/internal/demotest"
	"github.com/annel0/demoparse/internal/entity"
	"github.com/annel0/demoparse/internal/gameevent"
	"github.com/annel0/demoparse/internal/observability"
	"github.com/annel0/demoparse/internal/protocol"
	"github.com/annel0/demoparse/internal/sendtable"
	"github.com/annel0/demoparse/internal/stringtable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

// recorder записывает все уведомления в одну ленту
type recorder struct {
	log      []string
	states   []State
	packets  []*protocol.Packet
	progress []float64

	stopOnEntity bool
	stopOnPacket bool
	failOnTick   error
}

func (r *recorder) OnPacket(p *protocol.Packet) error {
	r.packets = append(r.packets, p)
	r.log = append(r.log, fmt.Sprintf("packet:%d", p.ID))
	if r.stopOnPacket {
		return ErrStop
	}
	return nil
}

func (r *recorder) OnState(s State) error {
	r.states = append(r.states, s)
	r.log = append(r.log, "state:"+s.String())
	return nil
}

func (r *recorder) OnEntity(ev entity.Event, e *entity.Entity) error {
	r.log = append(r.log, fmt.Sprintf("entity:%s:%d", ev, e.ID()))
	if r.stopOnEntity {
		return ErrStop
	}
	return nil
}

func (r *recorder) OnTick(tick int32) error {
	r.log = append(r.log, fmt.Sprintf("tick:%d", tick))
	return r.failOnTick
}

func (r *recorder) OnProgress(pct float64) error {
	r.progress = append(r.progress, pct)
	r.log = append(r.log, "progress")
	return nil
}

func testRegistry(t *testing.T) *classes.Registry {
	t.Helper()
	reg, err := demotest.Registry(demotest.ItemSchema(), demotest.ItemClasses())
	require.NoError(t, err)
	return reg
}

// preamble заголовок, схемы и классы на тике -1, затем SyncTick на тике 0
func preamble() *demotest.Builder {
	return demotest.NewBuilder().
		FileHeader(&protocol.FileHeader{MapName: "dota", ServerName: "srv", BuildNum: 42}).
		SendTables(demotest.ItemSchema()).
		ClassInfo(demotest.ItemClasses()...).
		SyncTick(0)
}

func entities(t *testing.T, reg *classes.Registry, isDelta bool, fill func(w *demotest.EntityWriter) error) demotest.Message {
	t.Helper()
	w := demotest.NewEntityWriter(reg)
	require.NoError(t, fill(w))
	return demotest.Msg(protocol.SvcPacketEntities, w.Message(isDelta).Marshal())
}

func openStream(t *testing.T, b *demotest.Builder) *Parser {
	t.Helper()
	p, err := Open(b.Reader())
	require.NoError(t, err)
	return p
}

func TestParseAll_CreateThenUpdate(t *testing.T) {
	reg := testRegistry(t)

	create := entities(t, reg, false, func(w *demotest.EntityWriter) error {
		return w.Create(0, 0, 1, demotest.Value{Name: "name", Value: "Boots"})
	})
	update := entities(t, reg, true, func(w *demotest.EntityWriter) error {
		return w.Update(0, 0, demotest.Value{Name: "charges", Value: int64(3)})
	})

	p := openStream(t, preamble().Packet(1, create).Packet(2, update).Stop(3))
	rec := &recorder{}
	require.NoError(t, p.ParseAll(context.Background(), rec))

	want := []string{
		"state:INIT",
		"state:PRE_ENTITY",
		"progress", "tick:-1",
		"state:ENTITY_ACTIVE",
		"progress", "tick:0",
		"entity:CREATED:0",
		"progress", "tick:1",
		"entity:UPDATED:0",
		"progress", "tick:2",
		"progress", "tick:3",
		"state:FINISHED",
	}
	assert.Equal(t, want, rec.log)

	e, ok := p.Entities().Get(0)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"name": "Boots", "charges": int64(3)}, e.Snapshot())
	assert.Equal(t, "Item", p.ClassName(e.ClassID()))

	h, ok := p.FileHeader()
	require.True(t, ok)
	assert.Equal(t, "dota", h.MapName)
	assert.Equal(t, int32(42), h.BuildNum)

	for i := 1; i < len(rec.progress); i++ {
		if rec.progress[i] < rec.progress[i-1] {
			t.Errorf("прогресс уменьшился: %v -> %v", rec.progress[i-1], rec.progress[i])
		}
	}
	assert.Equal(t, 100.0, rec.progress[len(rec.progress)-1])
	assert.Equal(t, StateFinished, p.State())
}

func TestParseAll_OnlyRequiredPackets(t *testing.T) {
	combat := protowire.AppendTag(nil, 1, protowire.VarintType)
	combat = protowire.AppendVarint(combat, 4)

	p := openStream(t, preamble().
		Packet(1,
			demotest.Msg(protocol.DOTACombatLogDataHLTV, combat),
			demotest.Msg(900, []byte{1, 2, 3}),
			demotest.Msg(protocol.SvcPrint, []byte{0x0a, 0x01, 'x'}),
		).
		Stop(2))
	require.NoError(t, p.Require(protocol.DOTACombatLogDataHLTV))

	rec := &recorder{}
	require.NoError(t, p.ParseAll(context.Background(), rec))

	require.Len(t, rec.packets, 1)
	pkt := rec.packets[0]
	assert.Equal(t, protocol.DOTACombatLogDataHLTV, pkt.ID)
	v, ok := pkt.Field("type")
	require.True(t, ok)
	assert.Equal(t, int32(4), v)

	d := p.Diagnostics()
	assert.Equal(t, 3, d.Messages)
	assert.Equal(t, 1, d.Dispatched)
	assert.Zero(t, d.MalformedPackets)
}

func TestParseAll_RequiredUnknownPacketIsUnrecognized(t *testing.T) {
	p := openStream(t, preamble().Packet(1, demotest.Msg(901, []byte{0xde, 0xad})).Stop(2))
	require.NoError(t, p.Require(901))

	rec := &recorder{}
	require.NoError(t, p.ParseAll(context.Background(), rec))

	require.Len(t, rec.packets, 1)
	assert.True(t, rec.packets[0].Unrecognized)
	assert.Equal(t, []byte{0xde, 0xad}, rec.packets[0].Raw)
}

func TestParseAll_MalformedPacketIsSkipped(t *testing.T) {
	p := openStream(t, preamble().
		Packet(1, demotest.Msg(protocol.SvcPrint, []byte{0x08})).
		Packet(2, demotest.Msg(protocol.SvcPrint, []byte{0x0a, 0x02, 'o', 'k'})).
		Stop(3))
	require.NoError(t, p.Require(protocol.SvcPrint))

	rec := &recorder{}
	require.NoError(t, p.ParseAll(context.Background(), rec), "повреждённое сообщение не должно прерывать разбор")

	require.Len(t, rec.packets, 1)
	v, _ := rec.packets[0].Field("text")
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, p.Diagnostics().MalformedPackets)
}

func TestParseAll_StopDuringFirstCreated(t *testing.T) {
	reg := testRegistry(t)

	create := entities(t, reg, false, func(w *demotest.EntityWriter) error {
		if err := w.Create(1, 0, 0); err != nil {
			return err
		}
		return w.Create(2, 1, 0)
	})
	update := entities(t, reg, true, func(w *demotest.EntityWriter) error {
		return w.Update(1, 0, demotest.Value{Name: "charges", Value: int64(1)})
	})

	p := openStream(t, preamble().Packet(1, create).Packet(2, update).Packet(3, update).Stop(4))
	rec := &recorder{stopOnEntity: true}
	require.NoError(t, p.ParseAll(context.Background(), rec))

	want := []string{
		"state:INIT",
		"state:PRE_ENTITY",
		"progress", "tick:-1",
		"state:ENTITY_ACTIVE",
		"progress", "tick:0",
		"entity:CREATED:1",
		"entity:CREATED:2",
		"progress", "tick:1",
		"state:FINISHED",
	}
	assert.Equal(t, want, rec.log)
	assert.Equal(t, StateFinished, p.State())

	assert.ErrorIs(t, p.ParseAll(context.Background(), rec), ErrParserFinished)
	assert.ErrorIs(t, p.Require(protocol.SvcPrint), ErrParserFinished)
}

func TestParseAll_StopFromPacketSkipsRestOfPacket(t *testing.T) {
	p := openStream(t, preamble().
		Packet(1,
			demotest.Msg(protocol.SvcPrint, []byte{0x0a, 0x01, 'a'}),
			demotest.Msg(protocol.SvcPrint, []byte{0x0a, 0x01, 'b'}),
		).
		Packet(2, demotest.Msg(protocol.SvcPrint, []byte{0x0a, 0x01, 'c'})).
		Stop(3))
	require.NoError(t, p.Require(protocol.SvcPrint))

	rec := &recorder{stopOnPacket: true}
	require.NoError(t, p.ParseAll(context.Background(), rec))

	assert.Len(t, rec.packets, 1)
	assert.Equal(t, []string{"packet:16", "progress", "tick:1", "state:FINISHED"}, rec.log[len(rec.log)-4:])
}

func TestParseAll_StatesMonotonicWithoutHeader(t *testing.T) {
	b := demotest.NewBuilder().
		SendTables(demotest.ItemSchema()).
		ClassInfo(demotest.ItemClasses()...).
		Packet(5).
		Packet(6).
		Stop(7)
	p := openStream(t, b)

	rec := &recorder{}
	require.NoError(t, p.ParseAll(context.Background(), rec))

	assert.Equal(t, []State{StateInit, StatePreEntity, StateEntityActive, StateFinished}, rec.states)
	_, ok := p.FileHeader()
	assert.False(t, ok)
}

func TestParseAll_EntitiesBeforeActiveDropped(t *testing.T) {
	reg := testRegistry(t)
	create := entities(t, reg, false, func(w *demotest.EntityWriter) error {
		return w.Create(0, 0, 0)
	})

	b := demotest.NewBuilder().
		SendTables(demotest.ItemSchema()).
		ClassInfo(demotest.ItemClasses()...).
		SignonPacket(-1, create).
		Stop(0)
	p := openStream(t, b)

	rec := &recorder{}
	require.NoError(t, p.ParseAll(context.Background(), rec))

	assert.Equal(t, 1, p.Diagnostics().DroppedEntityPackets)
	assert.Zero(t, p.Entities().Len())
	for _, line := range rec.log {
		assert.NotContains(t, line, "entity:")
	}
}

func TestParseAll_UnknownEntityUpdateIsRecoverable(t *testing.T) {
	reg := testRegistry(t)
	bad := entities(t, reg, true, func(w *demotest.EntityWriter) error {
		return w.Update(7, 0, demotest.Value{Name: "charges", Value: int64(1)})
	})
	good := entities(t, reg, false, func(w *demotest.EntityWriter) error {
		return w.Create(7, 0, 0)
	})

	p := openStream(t, preamble().Packet(1, bad).Packet(2, good).Stop(3))
	rec := &recorder{}
	require.NoError(t, p.ParseAll(context.Background(), rec))

	assert.Equal(t, 1, p.Diagnostics().UnknownEntities)
	assert.Contains(t, rec.log, "entity:CREATED:7")
}

// recoverableCount значение счетчика пропущенных ошибок вида kind
func recoverableCount(t *testing.T, reg *prometheus.Registry, kind string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "demoparse_recoverable_errors_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "kind" && lp.GetValue() == kind {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestParseAll_UnresolvedFieldPathIsRecoverable(t *testing.T) {
	reg := testRegistry(t)
	create := entities(t, reg, false, func(w *demotest.EntityWriter) error {
		if err := w.Create(0, 0, 0, demotest.Value{Name: "charges", Value: int64(1)}); err != nil {
			return err
		}
		return w.Create(1, 0, 0, demotest.Value{Name: "charges", Value: int64(2)})
	})
	bad := entities(t, reg, true, func(w *demotest.EntityWriter) error {
		paths := []sendtable.FieldPath{
			sendtable.NewFieldPath(0),
			sendtable.NewFieldPath(1, 5),
			sendtable.NewFieldPath(1),
		}
		if err := w.UpdateRaw(0, paths, func(bw *bitstream.Writer) {
			bw.WriteString("Shield")
			bw.WriteVarInt32(99)
			bw.WriteVarInt32(7)
		}); err != nil {
			return err
		}
		return w.Update(1, 0, demotest.Value{Name: "charges", Value: int64(8)})
	})
	unknown := entities(t, reg, true, func(w *demotest.EntityWriter) error {
		if err := w.Delete(5); err != nil {
			return err
		}
		return w.Update(9, 0, demotest.Value{Name: "charges", Value: int64(1)})
	})

	promReg := prometheus.NewRegistry()
	b := preamble().Packet(1, create).Packet(2, bad).Packet(3, unknown).Stop(4)
	p, err := Open(b.Reader(), WithMetrics(observability.NewParserMetrics(promReg)))
	require.NoError(t, err)

	rec := &recorder{}
	require.NoError(t, p.ParseAll(context.Background(), rec), "неразрешимый путь не прерывает разбор")
	assert.Contains(t, rec.log, "entity:UPDATED:0")
	assert.NotContains(t, rec.log, "entity:UPDATED:1", "остаток пакета пропущен")

	d := p.Diagnostics()
	assert.Equal(t, 2, d.UnknownEntities)
	assert.Equal(t, 2, d.FieldErrors)
	assert.Equal(t, 1, d.AbandonedEntityPackets)

	t.Run("метрики совпадают с диагностикой", func(t *testing.T) {
		assert.Equal(t, float64(d.UnknownEntities), recoverableCount(t, promReg, "unknown_entity"))
		assert.Equal(t, float64(d.FieldErrors), recoverableCount(t, promReg, "field_error"))
		assert.Equal(t, float64(d.AbandonedEntityPackets), recoverableCount(t, promReg, "abandoned_entity_packet"))

		total := 0.0
		for _, kind := range []string{"malformed_packet", "unknown_entity", "field_error", "baseline_field_error", "unknown_game_event"} {
			total += recoverableCount(t, promReg, kind)
		}
		assert.Equal(t, float64(d.Recoverable()), total)
	})
}

func TestParseAll_StringTablesAndBaseline(t *testing.T) {
	reg := testRegistry(t)
	item, ok := reg.Serializer("Item")
	require.True(t, ok)

	w := bitstream.NewWriter()
	require.NoError(t, sendtable.WriteFields(w, item, []sendtable.FieldValue{
		{Path: sendtable.NewFieldPath(1), Value: int64(7)},
	}))

	create := entities(t, reg, false, func(ew *demotest.EntityWriter) error {
		return ew.Create(0, 0, 0, demotest.Value{Name: "name", Value: "Boots"})
	})

	b := demotest.NewBuilder().
		SendTables(demotest.ItemSchema()).
		SignonPacket(-1,
			demotest.CreateTable(stringtable.InstanceBaseline, stringtable.Options{},
				stringtable.Entry{Index: 0, Key: "0", Value: w.Bytes()}),
			demotest.CreateTable("EntityNames", stringtable.Options{},
				stringtable.Entry{Index: 0, Key: "hero1"},
				stringtable.Entry{Index: 1, Key: "hero2"}),
		).
		ClassInfo(demotest.ItemClasses()...).
		SyncTick(0).
		Packet(1, create).
		Stop(2)
	p := openStream(t, b)
	require.NoError(t, p.ParseAll(context.Background(), &recorder{}))

	names, ok := p.StringTables().ByName("EntityNames")
	require.True(t, ok)
	e, ok := names.ByIndex(1)
	require.True(t, ok)
	assert.Equal(t, "hero2", e.Key)
	_, ok = names.ByIndex(5)
	assert.False(t, ok)

	ent, ok := p.Entities().Get(0)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"charges": int64(7), "name": "Boots"}, ent.Snapshot(),
		"поля базового состояния должны попасть в новую сущность")
}

func TestParseAll_CompressedFrames(t *testing.T) {
	reg := testRegistry(t)
	create := entities(t, reg, false, func(w *demotest.EntityWriter) error {
		return w.Create(3, 1, 0, demotest.Value{Name: "m_iHealth", Value: int64(640)})
	})

	b := demotest.NewBuilder().Compressed(true).
		FileHeader(&protocol.FileHeader{MapName: "dota"}).
		SendTables(demotest.ItemSchema()).
		ClassInfo(demotest.ItemClasses()...).
		SyncTick(0).
		Packet(1, create).
		Stop(2)
	p := openStream(t, b)
	require.NoError(t, p.ParseAll(context.Background(), &recorder{}))

	e, ok := p.Entities().Get(3)
	require.True(t, ok)
	f, ok := e.Get("m_iHealth")
	require.True(t, ok)
	assert.Equal(t, int64(640), f.Value())
}

func TestParseAll_ContextCancelled(t *testing.T) {
	p := openStream(t, preamble().Stop(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &recorder{}
	err := p.ParseAll(ctx, rec)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []State{StateInit, StateFinished}, rec.states)
}

func TestParseAll_TruncatedStreamIsFatal(t *testing.T) {
	full := preamble().Packet(1, demotest.Msg(protocol.SvcPrint, []byte{0x0a, 0x01, 'x'})).Bytes()
	p, err := Open(bytes.NewReader(full[:len(full)-2]))
	require.NoError(t, err)

	rec := &recorder{}
	err = p.ParseAll(context.Background(), rec)
	var te *demo.TruncatedStreamError
	require.True(t, errors.As(err, &te), "ожидалась TruncatedStreamError, получено %v", err)
	assert.NotContains(t, rec.states, StateFinished, "после фатальной ошибки уведомлений нет")
	assert.Equal(t, StateFinished, p.State())
}

func TestParseAll_ObserverErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	p := openStream(t, preamble().Stop(1))

	err := p.ParseAll(context.Background(), &recorder{failOnTick: boom})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateFinished, p.State())
}

func TestFileInfo(t *testing.T) {
	b := preamble().Stop(5).FileInfo(&protocol.FileInfo{PlaybackTime: 0.5, PlaybackTicks: 5, PlaybackFrames: 6})
	p := openStream(t, b)

	info, err := p.FileInfo()
	require.NoError(t, err)
	assert.Equal(t, int32(5), info.PlaybackTicks)
	assert.Equal(t, int32(6), info.PlaybackFrames)

	// чтение итоговой информации не сбивает разбор
	require.NoError(t, p.ParseAll(context.Background(), &recorder{}))
	assert.Equal(t, 5, p.Diagnostics().Frames, "кадры до DEM_Stop включительно")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "INIT", StateInit.String())
	assert.Equal(t, "ENTITY_ACTIVE", StateEntityActive.String())
	assert.Equal(t, "State(9)", State(9).String())
}

// eventRecorder recorder, которому нужны игровые события
type eventRecorder struct {
	recorder
	events []*gameevent.Event
}

func (r *eventRecorder) OnGameEvent(ev *gameevent.Event) error {
	r.events = append(r.events, ev)
	r.log = append(r.log, "event:"+ev.Name())
	return nil
}

func gameEventStream() *demotest.Builder {
	list := &protocol.GameEventList{Descriptors: []protocol.GameEventDescriptor{
		{EventID: 4, Name: "dota_player_kill", Keys: []protocol.GameEventKeyInfo{
			{Type: int32(gameevent.KeyShort), Name: "victim_userid"},
			{Type: int32(gameevent.KeyBool), Name: "tower_kill"},
		}},
	}}
	kill := &protocol.GameEvent{EventID: 4, Keys: []protocol.GameEventKey{
		{Type: int32(gameevent.KeyShort), Short: 3},
		{Type: int32(gameevent.KeyBool), Bool: true},
	}}
	unknown := &protocol.GameEvent{EventID: 77, EventName: "custom"}

	return preamble().
		SignonPacket(0, demotest.Msg(protocol.GELegacyGameEventList, list.Marshal())).
		Packet(1,
			demotest.Msg(protocol.GELegacyGameEvent, kill.Marshal()),
			demotest.Msg(protocol.GELegacyGameEvent, unknown.Marshal()),
		).
		Stop(2)
}

func TestParseAll_GameEvents(t *testing.T) {
	p := openStream(t, gameEventStream())
	rec := &eventRecorder{}
	require.NoError(t, p.ParseAll(context.Background(), rec))

	desc, ok := p.GameEvents().ByName("dota_player_kill")
	require.True(t, ok, "список событий загружается без подписки")
	assert.Equal(t, int32(4), desc.ID)

	require.Len(t, rec.events, 1)
	ev := rec.events[0]
	assert.Equal(t, "dota_player_kill", ev.Name())
	victim, ok := ev.GetInt("victim_userid")
	require.True(t, ok)
	assert.Equal(t, int64(3), victim)
	tower, ok := ev.GetBool("tower_kill")
	require.True(t, ok)
	assert.True(t, tower)

	d := p.Diagnostics()
	assert.Equal(t, 1, d.GameEvents)
	assert.Equal(t, 1, d.UnknownGameEvents, "неизвестное событие пропускается")
	assert.Equal(t, 1, d.Recoverable())

	i := indexOf(rec.log, "event:dota_player_kill")
	require.GreaterOrEqual(t, i, 0)
	assert.Less(t, i, indexOf(rec.log, "tick:1"), "события приходят до завершения своего тика")

	t.Run("метрика неизвестных событий", func(t *testing.T) {
		promReg := prometheus.NewRegistry()
		p, err := Open(gameEventStream().Reader(), WithMetrics(observability.NewParserMetrics(promReg)))
		require.NoError(t, err)
		require.NoError(t, p.ParseAll(context.Background(), &eventRecorder{}))
		assert.Equal(t, float64(p.Diagnostics().UnknownGameEvents), recoverableCount(t, promReg, "unknown_game_event"))
	})
}

func TestParseAll_GameEventsSkippedWithoutObserver(t *testing.T) {
	p := openStream(t, gameEventStream())
	require.NoError(t, p.ParseAll(context.Background(), &recorder{}))

	d := p.Diagnostics()
	assert.Zero(t, d.GameEvents)
	assert.Zero(t, d.UnknownGameEvents, "без подписки события не разбираются")
	assert.Equal(t, 1, p.GameEvents().Len())
}

func indexOf(log []string, line string) int {
	for i, l := range log {
		if l == line {
			return i
		}
	}
	return -1
}

// seekStream поток с полным пакетом на тике 10
func seekStream(t *testing.T, reg *classes.Registry) *demotest.Builder {
	t.Helper()
	opts := stringtable.Options{}

	create := entities(t, reg, false, func(w *demotest.EntityWriter) error {
		return w.Create(0, 0, 1, demotest.Value{Name: "name", Value: "Boots"})
	})
	early := entities(t, reg, true, func(w *demotest.EntityWriter) error {
		return w.Update(0, 0, demotest.Value{Name: "charges", Value: int64(3)})
	})
	snapshot := entities(t, reg, false, func(w *demotest.EntityWriter) error {
		if err := w.Create(0, 0, 1,
			demotest.Value{Name: "name", Value: "Shield"},
			demotest.Value{Name: "charges", Value: int64(5)},
		); err != nil {
			return err
		}
		return w.Create(1, 1, 2)
	})
	heal := entities(t, reg, true, func(w *demotest.EntityWriter) error {
		return w.Update(1, 1, demotest.Value{Name: "m_iHealth", Value: int64(500)})
	})
	spend := entities(t, reg, true, func(w *demotest.EntityWriter) error {
		return w.Update(0, 0, demotest.Value{Name: "charges", Value: int64(4)})
	})

	tables := []protocol.StringTableSnapshot{{
		TableName: "EntityNames",
		Items:     []protocol.StringTableItem{{Key: "hero_a"}, {Key: "hero_b"}},
	}}
	return preamble().
		SignonPacket(0, demotest.CreateTable("EntityNames", opts, stringtable.Entry{Index: 0, Key: "old"})).
		Packet(1, create).
		Packet(2, early).
		FullPacket(10, tables, snapshot).
		Packet(11, heal).
		Packet(12, spend).
		Stop(13)
}

func TestSeek_FullPacket(t *testing.T) {
	reg := testRegistry(t)
	p := openStream(t, seekStream(t, reg))

	require.NoError(t, p.Seek(context.Background(), 11))
	assert.Equal(t, StateEntityActive, p.State())
	assert.Equal(t, int32(10), p.Tick())

	key, ok := p.StringTables().LookupByIndex("EntityNames", 1)
	require.True(t, ok)
	assert.Equal(t, "hero_b", key)
	_, ok = p.StringTables().LookupByKey("EntityNames", "old")
	assert.False(t, ok, "записи до полного пакета сброшены")

	rec := &recorder{}
	require.NoError(t, p.ParseAll(context.Background(), rec))

	want := []string{
		"state:INIT",
		"state:PRE_ENTITY",
		"state:ENTITY_ACTIVE",
		"entity:CREATED:0",
		"entity:CREATED:1",
		"entity:UPDATED:1",
		"progress", "tick:11",
		"entity:UPDATED:0",
		"progress", "tick:12",
		"progress", "tick:13",
		"state:FINISHED",
	}
	assert.Equal(t, want, rec.log)

	e, ok := p.Entities().Get(0)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"name": "Shield", "charges": int64(4)}, e.Snapshot(),
		"состояние берётся из полного пакета, а не из ранних дельт")
}

func TestSeek_BackwardAndErrors(t *testing.T) {
	reg := testRegistry(t)
	p := openStream(t, seekStream(t, reg))
	ctx := context.Background()

	err := p.Seek(ctx, 5)
	assert.ErrorIs(t, err, ErrSeekUnavailable, "до тика 5 полного пакета нет")

	require.NoError(t, p.Seek(ctx, 12))
	hero, ok := p.Entities().Get(1)
	require.True(t, ok)
	health, ok := hero.Get("m_iHealth")
	require.True(t, ok, "кадры между полным пакетом и целью применяются")
	assert.Equal(t, int64(500), health.Value())

	require.NoError(t, p.Seek(ctx, 10))
	hero, ok = p.Entities().Get(1)
	require.True(t, ok)
	_, ok = hero.Get("m_iHealth")
	assert.False(t, ok, "повторный переход назад заново применяет полный пакет")
	assert.Equal(t, 2, p.Entities().Len())
	assert.Zero(t, p.Entities().Stats().SkippedFull)

	t.Run("после завершения", func(t *testing.T) {
		require.NoError(t, p.ParseAll(ctx, nil))
		assert.ErrorIs(t, p.Seek(ctx, 10), ErrParserFinished)
	})
}

func TestSeek_FromObserverRejected(t *testing.T) {
	reg := testRegistry(t)
	p := openStream(t, seekStream(t, reg))

	obs := &seekingObserver{p: p}
	require.NoError(t, p.ParseAll(context.Background(), obs))
	assert.ErrorIs(t, obs.err, ErrInParse)
}

type seekingObserver struct {
	NopObserver
	p   *Parser
	err error
}

func (o *seekingObserver) OnTick(tick int32) error {
	if tick == 1 && o.err == nil {
		o.err = o.p.Seek(context.Background(), 10)
	}
	return nil
}
