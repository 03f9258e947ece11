package demotest

import (
	"fmt"

	"github.com/annel0/demoparse/internal/bitstream"
	"github.com/annel0/demoparse/internal/classes"
	"github.com/annel0/demoparse/internal/protocol"
	"github.com/annel0/demoparse/internal/sendtable"
)

// Value значение поля по полному точечному имени
type Value struct {
	Name  string
	Value any
}

// EntityWriter кодирует entity_data для CSVCMsg_PacketEntities.
// Индексы должны идти по возрастанию, как в настоящем потоке.
type EntityWriter struct {
	reg   *classes.Registry
	w     *bitstream.Writer
	last  int32
	count int32
}

// NewEntityWriter создает запись пакета сущностей по реестру классов
func NewEntityWriter(reg *classes.Registry) *EntityWriter {
	return &EntityWriter{reg: reg, w: bitstream.NewWriter(), last: -1}
}

func (e *EntityWriter) header(index int32) error {
	if index <= e.last {
		return fmt.Errorf("индекс %d не больше предыдущего %d", index, e.last)
	}
	e.w.WriteUBitVar(uint32(index - e.last - 1))
	e.last = index
	e.count++
	return nil
}

func (e *EntityWriter) fields(classID int32, values []Value) error {
	c, ok := e.reg.Class(classID)
	if !ok {
		return fmt.Errorf("неизвестный класс %d", classID)
	}
	fvs := make([]sendtable.FieldValue, 0, len(values))
	for _, v := range values {
		fp, err := c.Serializer.PathOf(v.Name)
		if err != nil {
			return err
		}
		fvs = append(fvs, sendtable.FieldValue{Path: fp, Value: v.Value})
	}
	return sendtable.WriteFields(e.w, c.Serializer, fvs)
}

// Create сущность класса classID с начальными полями
func (e *EntityWriter) Create(index, classID, serial int32, values ...Value) error {
	if err := e.header(index); err != nil {
		return err
	}
	e.w.WriteBool(false)
	e.w.WriteBool(true)
	e.w.WriteBits(uint32(classID), uint(e.reg.ClassBits()))
	e.w.WriteBits(uint32(serial), 17)
	e.w.WriteVarUint32(0)
	return e.fields(classID, values)
}

// Update изменение полей; classID нужен только для поиска схемы
func (e *EntityWriter) Update(index, classID int32, values ...Value) error {
	if err := e.header(index); err != nil {
		return err
	}
	e.w.WriteBool(false)
	e.w.WriteBool(false)
	return e.fields(classID, values)
}

// UpdateRaw изменение с заданными путями полей; значения пишет write.
// Нужен, когда путь не выражается именем поля.
func (e *EntityWriter) UpdateRaw(index int32, paths []sendtable.FieldPath, write func(w *bitstream.Writer)) error {
	if err := e.header(index); err != nil {
		return err
	}
	e.w.WriteBool(false)
	e.w.WriteBool(false)
	if err := sendtable.WriteFieldPaths(e.w, paths); err != nil {
		return err
	}
	write(e.w)
	return nil
}

// Delete удаление сущности
func (e *EntityWriter) Delete(index int32) error {
	if err := e.header(index); err != nil {
		return err
	}
	e.w.WriteBool(true)
	e.w.WriteBool(true)
	return nil
}

// Leave выход сущности из области видимости
func (e *EntityWriter) Leave(index int32) error {
	if err := e.header(index); err != nil {
		return err
	}
	e.w.WriteBool(true)
	e.w.WriteBool(false)
	return nil
}

// Message готовое сообщение; isDelta=false означает полный снимок
func (e *EntityWriter) Message(isDelta bool) *protocol.PacketEntities {
	return &protocol.PacketEntities{
		MaxEntries:     e.count,
		UpdatedEntries: e.count,
		IsDelta:        isDelta,
		EntityData:     append([]byte(nil), e.w.Bytes()...),
	}
}

// Registry реестр, собранный из схемы и списка классов
func Registry(fs *protocol.FlattenedSerializer, list []protocol.ClassInfoEntry) (*classes.Registry, error) {
	reg := classes.NewRegistry()
	if err := reg.HandleSerializers(fs); err != nil {
		return nil, err
	}
	if err := reg.HandleClassInfo(&protocol.ClassInfo{Classes: list}); err != nil {
		return nil, err
	}
	return reg, nil
}
