// Package gameevent хранит описания игровых событий из списка событий демо
// и разбирает сами события с доступом к ключам по имени.
package gameevent

import (
	"errors"
	"fmt"
	"sort"

	"github.com/annel0/demoparse/internal/protocol"
)

// KeyType тип значения ключа события
type KeyType int32

// Типы ключей
const (
	KeyString KeyType = 1
	KeyFloat  KeyType = 2
	KeyLong   KeyType = 3
	KeyShort  KeyType = 4
	KeyByte   KeyType = 5
	KeyBool   KeyType = 6
	KeyUint64 KeyType = 7
)

func (t KeyType) String() string {
	switch t {
	case KeyString:
		return "string"
	case KeyFloat:
		return "float"
	case KeyLong:
		return "long"
	case KeyShort:
		return "short"
	case KeyByte:
		return "byte"
	case KeyBool:
		return "bool"
	case KeyUint64:
		return "uint64"
	}
	return fmt.Sprintf("KeyType(%d)", int32(t))
}

// ErrUnknownEvent идентификатор события отсутствует в списке
var ErrUnknownEvent = errors.New("неизвестное игровое событие")

// KeyInfo ключ в описании события
type KeyInfo struct {
	Name string
	Type KeyType
}

// Descriptor описание события: имя и упорядоченный список ключей
type Descriptor struct {
	ID   int32
	Name string
	Keys []KeyInfo

	index map[string]int
}

// KeyIndex позиция ключа в событии
func (d *Descriptor) KeyIndex(name string) (int, bool) {
	i, ok := d.index[name]
	return i, ok
}

// List описания событий одной сессии разбора.
// Заполняется из GE_Source1LegacyGameEventList; новый список заменяет прежний.
type List struct {
	byID   map[int32]*Descriptor
	byName map[string]*Descriptor
}

// NewList создает пустой список
func NewList() *List {
	return &List{
		byID:   make(map[int32]*Descriptor),
		byName: make(map[string]*Descriptor),
	}
}

// Load заменяет описания событий
func (l *List) Load(msg *protocol.GameEventList) {
	l.byID = make(map[int32]*Descriptor, len(msg.Descriptors))
	l.byName = make(map[string]*Descriptor, len(msg.Descriptors))

	for _, pd := range msg.Descriptors {
		d := &Descriptor{
			ID:    pd.EventID,
			Name:  pd.Name,
			Keys:  make([]KeyInfo, len(pd.Keys)),
			index: make(map[string]int, len(pd.Keys)),
		}
		for i, k := range pd.Keys {
			d.Keys[i] = KeyInfo{Name: k.Name, Type: KeyType(k.Type)}
			if _, dup := d.index[k.Name]; !dup {
				d.index[k.Name] = i
			}
		}
		l.byID[d.ID] = d
		l.byName[d.Name] = d
	}
}

// ByID возвращает описание по идентификатору
func (l *List) ByID(id int32) (*Descriptor, bool) {
	d, ok := l.byID[id]
	return d, ok
}

// ByName возвращает описание по имени
func (l *List) ByName(name string) (*Descriptor, bool) {
	d, ok := l.byName[name]
	return d, ok
}

// Len количество описаний
func (l *List) Len() int { return len(l.byID) }

// Names имена событий по алфавиту
func (l *List) Names() []string {
	names := make([]string, 0, len(l.byName))
	for name := range l.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Decode сопоставляет ключи события с описанием.
// Лишние ключи сообщения отбрасываются, недостающие остаются незаданными.
func (l *List) Decode(msg *protocol.GameEvent) (*Event, error) {
	d, ok := l.byID[msg.EventID]
	if !ok {
		return nil, fmt.Errorf("%w: %d (%q)", ErrUnknownEvent, msg.EventID, msg.EventName)
	}

	n := min(len(msg.Keys), len(d.Keys))
	ev := &Event{
		Descriptor: d,
		Tick:       msg.ServerTick,
		values:     make([]any, n),
	}
	for i := 0; i < n; i++ {
		ev.values[i] = keyValue(msg.Keys[i])
	}
	return ev, nil
}

func keyValue(k protocol.GameEventKey) any {
	switch KeyType(k.Type) {
	case KeyString:
		return k.String
	case KeyFloat:
		return k.Float
	case KeyLong:
		return k.Long
	case KeyShort:
		return k.Short
	case KeyByte:
		return k.Byte
	case KeyBool:
		return k.Bool
	case KeyUint64:
		return k.Uint64
	}
	return nil
}
