package classes

import (
	"fmt"
	"math/bits"
	"sort"

	"github.com/annel0/demoparse/internal/protocol"
	"github.com/annel0/demoparse/internal/sendtable"
)

// SchemaConflictError повторная регистрация класса с другой схемой.
// Поток несовместим с текущим разбором, продолжать нельзя.
type SchemaConflictError struct {
	ClassID int32
	Name    string
	Old     uint64
	New     uint64
}

func (e *SchemaConflictError) Error() string {
	return fmt.Sprintf("конфликт схемы класса %d (%s): отпечаток %x, получен %x", e.ClassID, e.Name, e.Old, e.New)
}

// Class сетевой класс и его схема
type Class struct {
	ID         int32
	Name       string
	Serializer *sendtable.Serializer
}

// Registry классы, схемы и базовые состояния одной сессии разбора
type Registry struct {
	classes     map[int32]*Class
	byName      map[string]*Class
	serializers map[string]*sendtable.Serializer
	classBits   int

	baselines *baselineStore
}

// NewRegistry создает пустой реестр
func NewRegistry() *Registry {
	r := &Registry{
		classes:     make(map[int32]*Class),
		byName:      make(map[string]*Class),
		serializers: make(map[string]*sendtable.Serializer),
	}
	r.baselines = newBaselineStore(r)
	return r
}

// HandleSerializers загружает схемы из CSVCMsg_FlattenedSerializer
func (r *Registry) HandleSerializers(msg *protocol.FlattenedSerializer) error {
	built, err := sendtable.Build(msg)
	if err != nil {
		return fmt.Errorf("ошибка построения схем: %w", err)
	}
	for name, s := range built {
		r.serializers[name] = s
	}
	return nil
}

// Serializer возвращает схему по имени
func (r *Registry) Serializer(name string) (*sendtable.Serializer, bool) {
	s, ok := r.serializers[name]
	return s, ok
}

// RegisterSerializer связывает класс со схемой.
// Повторная регистрация с той же схемой ничего не меняет.
func (r *Registry) RegisterSerializer(classID int32, name string, s *sendtable.Serializer) error {
	if cur, ok := r.classes[classID]; ok {
		if cur.Serializer.Fingerprint() != s.Fingerprint() {
			return &SchemaConflictError{ClassID: classID, Name: name, Old: cur.Serializer.Fingerprint(), New: s.Fingerprint()}
		}
		return nil
	}

	c := &Class{ID: classID, Name: name, Serializer: s}
	r.classes[classID] = c
	r.byName[name] = c
	r.classBits = classBitsFor(len(r.classes))
	return nil
}

// HandleClassInfo регистрирует классы из CDemoClassInfo.
// Схема ищется по сетевому имени класса.
func (r *Registry) HandleClassInfo(msg *protocol.ClassInfo) error {
	for _, ci := range msg.Classes {
		s, ok := r.serializers[ci.NetworkName]
		if !ok {
			return fmt.Errorf("класс %d: схема %q не загружена", ci.ClassID, ci.NetworkName)
		}
		if err := r.RegisterSerializer(ci.ClassID, ci.NetworkName, s); err != nil {
			return err
		}
	}
	return nil
}

// classBitsFor число бит на идентификатор класса: ceil(log2(n))
func classBitsFor(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

// ClassBits разрядность идентификатора класса в PacketEntities
func (r *Registry) ClassBits() int { return r.classBits }

// Len количество классов
func (r *Registry) Len() int { return len(r.classes) }

// Class возвращает класс по идентификатору
func (r *Registry) Class(id int32) (*Class, bool) {
	c, ok := r.classes[id]
	return c, ok
}

// ByName возвращает класс по сетевому имени
func (r *Registry) ByName(name string) (*Class, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// ClassName имя класса или пустая строка
func (r *Registry) ClassName(id int32) string {
	if c, ok := r.classes[id]; ok {
		return c.Name
	}
	return ""
}

// IDs идентификаторы классов по возрастанию
func (r *Registry) IDs() []int32 {
	ids := make([]int32, 0, len(r.classes))
	for id := range r.classes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids
}
