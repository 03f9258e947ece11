package parser

import (
	"errors"

	"github.com/annel0/demoparse/internal/entity"
	"github.com/annel0/demoparse/internal/gameevent"
	"github.com/annel0/demoparse/internal/protocol"
)

// ErrStop возвращается из любого метода Observer, чтобы остановить разбор.
// Уже запланированные уведомления текущего тика доставляются, затем
// парсер переходит в FINISHED и ParseAll возвращает nil.
var ErrStop = errors.New("остановка по запросу наблюдателя")

// Observer получает уведомления разбора. Все методы вызываются синхронно
// из потока разбора. Любая ошибка кроме ErrStop прерывает разбор.
//
// Сущности и таблицы, переданные наблюдателю, принадлежат парсеру:
// читать можно, изменять нельзя.
type Observer interface {
	// OnPacket только для сообщений, запрошенных через Require
	OnPacket(p *protocol.Packet) error
	OnState(s State) error
	OnEntity(ev entity.Event, e *entity.Entity) error
	OnTick(tick int32) error
	OnProgress(percent float64) error
}

// GameEventObserver дополнительный интерфейс наблюдателя. Если наблюдатель
// его реализует, парсер разбирает GE_Source1LegacyGameEvent по списку событий
// и вызывает OnGameEvent в порядке прихода сообщений; иначе события
// пропускаются без разбора.
type GameEventObserver interface {
	OnGameEvent(ev *gameevent.Event) error
}

// NopObserver ничего не делает; удобно встраивать в собственные наблюдатели
type NopObserver struct{}

func (NopObserver) OnPacket(*protocol.Packet) error             { return nil }
func (NopObserver) OnState(State) error                         { return nil }
func (NopObserver) OnEntity(entity.Event, *entity.Entity) error { return nil }
func (NopObserver) OnTick(int32) error                          { return nil }
func (NopObserver) OnProgress(float64) error                    { return nil }

// call разбирает результат обратного вызова: ErrStop только выставляет флаг
func (p *Parser) call(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStop) {
		if !p.stop {
			p.log.Info("Наблюдатель запросил остановку на тике %d", p.tick)
		}
		p.stop = true
		return nil
	}
	return err
}
