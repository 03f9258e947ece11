package entity

import (
	"fmt"

	"github.com/annel0/demoparse/internal/classes"
	"github.com/annel0/demoparse/internal/sendtable"
)

// Event событие жизненного цикла сущности
type Event uint8

const (
	Created Event = iota
	Updated
	Deleted
	Left
)

func (e Event) String() string {
	switch e {
	case Created:
		return "CREATED"
	case Updated:
		return "UPDATED"
	case Deleted:
		return "DELETED"
	case Left:
		return "LEFT"
	}
	return fmt.Sprintf("Event(%d)", uint8(e))
}

// Entity живая сущность: индекс, класс и разреженная карта полей.
// Наблюдатели получают указатель, но изменять сущность может только хранилище.
type Entity struct {
	index  int32
	serial int32
	class  *classes.Class
	state  *sendtable.State
	active bool
}

// FieldInfo описание поля
type FieldInfo struct {
	Name string
	Key  uint64
}

// Field значение поля сущности на момент запроса
type Field struct {
	info  FieldInfo
	value any
}

// Value значение поля
func (f Field) Value() any { return f.value }

// Info описание поля
func (f Field) Info() FieldInfo { return f.info }

// ID индекс сущности
func (e *Entity) ID() int32 { return e.index }

// Serial серийный номер (отличает сущности, переиспользующие индекс)
func (e *Entity) Serial() int32 { return e.serial }

// ClassID идентификатор класса
func (e *Entity) ClassID() int32 { return e.class.ID }

// ClassName имя класса
func (e *Entity) ClassName() string { return e.class.Name }

// Left true, если сущность покинула область видимости
func (e *Entity) Left() bool { return !e.active }

// Properties ключи заданных полей в порядке установки
func (e *Entity) Properties() []uint64 { return e.state.Keys() }

// GetByHash возвращает поле по ключу
func (e *Entity) GetByHash(key uint64) (Field, bool) {
	p, ok := e.state.Get(key)
	if !ok {
		return Field{}, false
	}
	return Field{info: FieldInfo{Name: p.Name, Key: p.Key}, value: p.Value}, true
}

// Get возвращает поле по полному точечному имени, например "m_hItems.3"
func (e *Entity) Get(path string) (Field, bool) {
	return e.GetByHash(sendtable.Key(path))
}

// Snapshot копия всех полей: имя -> значение
func (e *Entity) Snapshot() map[string]any {
	out := make(map[string]any, e.state.Len())
	for _, k := range e.state.Keys() {
		p, _ := e.state.Get(k)
		out[p.Name] = p.Value
	}
	return out
}

func (e *Entity) String() string {
	return fmt.Sprintf("%s#%d", e.class.Name, e.index)
}
