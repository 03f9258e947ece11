package entity

import (
	"errors"
	"fmt"
	"sort"

	"github.com/annel0/demoparse/internal/bitstream"
	"github.com/annel0/demoparse/internal/classes"
	"github.com/annel0/demoparse/internal/logging"
	"github.com/annel0/demoparse/internal/protocol"
	"github.com/annel0/demoparse/internal/sendtable"
)

// DefaultMaxEntities предел индекса сущности
const DefaultMaxEntities = 1 << 14

const serialBits = 17

// Op операция дельты
type Op uint8

const (
	OpCreate Op = iota
	OpUpdate
	OpDelete
	OpLeave
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "CREATE"
	case OpUpdate:
		return "UPDATE"
	case OpDelete:
		return "DELETE"
	case OpLeave:
		return "LEAVE"
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// ErrIndexOutOfRange индекс сущности за пределом хранилища
var ErrIndexOutOfRange = errors.New("индекс сущности вне допустимого диапазона")

// UnknownEntityError дельта для сущности, которой нет среди живых.
// Обновление пропускается, разбор продолжается.
type UnknownEntityError struct {
	Index int32
	Op    Op
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("%s для неизвестной сущности %d", e.Op, e.Index)
}

// FieldPathError путь поля в дельте не разрешился схемой класса.
// Прочитанные до него поля сохраняются, остальные остаются незаданными,
// остаток пакета пропускается. Разбор продолжается.
type FieldPathError struct {
	Index int32
	Class string
	Err   error
}

func (e *FieldPathError) Error() string {
	return fmt.Sprintf("сущность %d (%s): %v", e.Index, e.Class, e.Err)
}

func (e *FieldPathError) Unwrap() error { return e.Err }

// IsRecoverable сообщает, можно ли продолжать разбор после ошибки ReadPacketEntities
func IsRecoverable(err error) bool {
	var unknown *UnknownEntityError
	var path *FieldPathError
	return errors.As(err, &unknown) || errors.As(err, &path)
}

// Notification отложенное уведомление о жизненном цикле
type Notification struct {
	Event  Event
	Entity *Entity
}

// Stats счетчики восстановимых ошибок хранилища
type Stats struct {
	UnknownEntities  int
	FieldErrors      int
	SkippedFull      int
	AbandonedPackets int // пакеты, прерванные на неразрешимом пути поля
}

// Store живые сущности одной сессии разбора.
// Уведомления копятся до Flush, чтобы наблюдатель видел состояние на конец тика.
type Store struct {
	reg         *classes.Registry
	entities    map[int32]*Entity
	maxEntities int32
	pending     []Notification
	fullPackets int
	stats       Stats
}

// NewStore создает хранилище; maxEntities <= 0 означает DefaultMaxEntities
func NewStore(reg *classes.Registry, maxEntities int) *Store {
	if maxEntities <= 0 {
		maxEntities = DefaultMaxEntities
	}
	return &Store{
		reg:         reg,
		entities:    make(map[int32]*Entity),
		maxEntities: int32(maxEntities),
	}
}

// Apply применяет одну дельту с уже декодированными полями.
// Для OpCreate classID обязателен, для остальных операций игнорируется.
func (s *Store) Apply(index, classID int32, op Op, updates *sendtable.State) error {
	if index < 0 || index >= s.maxEntities {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}

	switch op {
	case OpCreate:
		e, err := s.create(index, classID, 0)
		if err != nil {
			return err
		}
		if updates != nil {
			e.state.Merge(updates)
		}
		s.schedule(Created, e)
	case OpUpdate:
		e, ok := s.entities[index]
		if !ok {
			return s.unknown(index, op)
		}
		if updates != nil {
			e.state.Merge(updates)
		}
		e.active = true
		s.schedule(Updated, e)
	case OpDelete:
		e, ok := s.entities[index]
		if !ok {
			return s.unknown(index, op)
		}
		delete(s.entities, index)
		e.active = false
		s.schedule(Deleted, e)
	case OpLeave:
		e, ok := s.entities[index]
		if !ok {
			return s.unknown(index, op)
		}
		e.active = false
		s.schedule(Left, e)
	default:
		return fmt.Errorf("неизвестная операция %d", op)
	}
	return nil
}

func (s *Store) create(index, classID, serial int32) (*Entity, error) {
	c, ok := s.reg.Class(classID)
	if !ok {
		return nil, fmt.Errorf("создание сущности %d: неизвестный класс %d", index, classID)
	}
	st, err := s.reg.Instantiate(classID)
	if err != nil {
		return nil, err
	}
	e := &Entity{index: index, serial: serial, class: c, state: st, active: true}
	s.entities[index] = e
	return e, nil
}

func (s *Store) unknown(index int32, op Op) error {
	s.stats.UnknownEntities++
	err := &UnknownEntityError{Index: index, Op: op}
	logging.Debug("Пропуск дельты: %v", err)
	return err
}

func (s *Store) schedule(ev Event, e *Entity) {
	s.pending = append(s.pending, Notification{Event: ev, Entity: e})
}

// ReadPacketEntities применяет CSVCMsg_PacketEntities.
// UnknownEntityError и FieldPathError прекращают разбор пакета (позиция
// следующей дельты неизвестна), но восстановимы: см. IsRecoverable.
// Сущность, на которой оборвался пакет, все равно получает уведомление.
func (s *Store) ReadPacketEntities(msg *protocol.PacketEntities) error {
	if !msg.IsDelta {
		if s.fullPackets > 0 {
			s.stats.SkippedFull++
			return nil
		}
		s.fullPackets++
	}

	r := bitstream.NewReader(msg.EntityData)
	classBits := uint(s.reg.ClassBits())
	index := int32(-1)

	for i := int32(0); i < msg.UpdatedEntries; i++ {
		index += int32(r.ReadUBitVar()) + 1
		if err := r.Err(); err != nil {
			return fmt.Errorf("заголовок сущности %d: %w", i, err)
		}
		if index < 0 || index >= s.maxEntities {
			return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
		}

		if r.ReadBool() {
			op := OpLeave
			if r.ReadBool() {
				op = OpDelete
			}
			var unknown *UnknownEntityError
			if err := s.Apply(index, 0, op, nil); err != nil && !errors.As(err, &unknown) {
				return err
			}
			continue
		}

		if r.ReadBool() {
			classID := int32(r.ReadBits(classBits))
			serial := int32(r.ReadBits(serialBits))
			r.ReadVarUint32()

			e, err := s.create(index, classID, serial)
			if err != nil {
				return err
			}
			ferr := s.readFields(r, e)
			if ferr != nil && !IsRecoverable(ferr) {
				return ferr
			}
			if ferr == nil && msg.UpdateBaseline {
				if err := s.reg.ApplyBaseline(classID, e.state); err != nil {
					return err
				}
			}
			s.schedule(Created, e)
			if ferr != nil {
				return ferr
			}
			continue
		}

		e, ok := s.entities[index]
		if !ok {
			return s.unknown(index, OpUpdate)
		}
		ferr := s.readFields(r, e)
		if ferr != nil && !IsRecoverable(ferr) {
			return ferr
		}
		e.active = true
		s.schedule(Updated, e)
		if ferr != nil {
			return ferr
		}
	}
	return nil
}

func (s *Store) readFields(r *bitstream.Reader, e *Entity) error {
	fieldErrs, err := sendtable.ReadFields(r, e.class.Serializer, e.state)
	for _, fe := range fieldErrs {
		s.stats.FieldErrors++
		logging.Debug("Сущность %s: %v", e, fe)
	}
	var unresolved *sendtable.UnresolvedPathError
	if errors.As(err, &unresolved) {
		s.stats.AbandonedPackets++
		err = &FieldPathError{Index: e.index, Class: e.class.Name, Err: err}
		logging.Debug("Пропуск остатка пакета: %v", err)
		return err
	}
	if err != nil {
		return fmt.Errorf("сущность %s: %w", e, err)
	}
	return nil
}

// Reset удаляет все сущности и уведомления перед повторным применением
// полного снимка. Счетчики Stats сохраняются.
func (s *Store) Reset() {
	s.entities = make(map[int32]*Entity)
	s.pending = nil
	s.fullPackets = 0
}

// Announce заменяет очередь уведомлений на CREATED для каждой живой
// сущности в порядке индексов
func (s *Store) Announce() {
	s.pending = s.pending[:0]
	for _, e := range s.All() {
		s.schedule(Created, e)
	}
}

// Flush возвращает накопленные уведомления и очищает очередь
func (s *Store) Flush() []Notification {
	out := s.pending
	s.pending = nil
	return out
}

// Pending количество ожидающих уведомлений
func (s *Store) Pending() int { return len(s.pending) }

// Get возвращает живую сущность по индексу
func (s *Store) Get(index int32) (*Entity, bool) {
	e, ok := s.entities[index]
	return e, ok
}

// Len количество сущностей в хранилище (включая покинувшие область видимости)
func (s *Store) Len() int { return len(s.entities) }

// All сущности по возрастанию индекса
func (s *Store) All() []*Entity {
	out := make([]*Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].index < out[b].index })
	return out
}

// Stats счетчики восстановимых ошибок
func (s *Store) Stats() Stats { return s.stats }
