package parser

import (
	"errors"
	"fmt"
)

// State фаза разбора. Фазы только растут.
type State uint8

const (
	// StateInit поток открыт, заголовок ещё не прочитан
	StateInit State = iota
	// StatePreEntity заголовок прочитан, идут схемы, классы и базовые состояния
	StatePreEntity
	// StateEntityActive идут дельты сущностей и таблиц строк
	StateEntityActive
	// StateFinished поток исчерпан или разбор остановлен
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StatePreEntity:
		return "PRE_ENTITY"
	case StateEntityActive:
		return "ENTITY_ACTIVE"
	case StateFinished:
		return "FINISHED"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// ErrParserFinished вызов точки входа после завершения разбора
var ErrParserFinished = errors.New("разбор уже завершён")

// ErrInParse ParseAll или Seek вызван из наблюдателя во время ParseAll
var ErrInParse = errors.New("разбор уже выполняется")

// enter переводит парсер в состояние s и уведомляет наблюдателя.
// Переход назад или на месте ничего не делает.
func (p *Parser) enter(s State) error {
	if s <= p.state {
		return nil
	}
	p.state = s
	p.log.Debug("Состояние разбора %s: %s", p.id, s)
	return p.call(p.obs.OnState(s))
}
