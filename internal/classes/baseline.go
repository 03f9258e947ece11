package classes

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/annel0/demoparse/internal/bitstream"
	"github.com/annel0/demoparse/internal/logging"
	"github.com/annel0/demoparse/internal/sendtable"
	"github.com/annel0/demoparse/internal/stringtable"
)

// baselineStore базовые состояния классов.
// Сырые данные приходят раньше схем и декодируются при первом обращении.
type baselineStore struct {
	reg     *Registry
	raw     map[int32][]byte
	decoded map[int32]*sendtable.State

	fieldErrors int
}

func newBaselineStore(reg *Registry) *baselineStore {
	return &baselineStore{
		reg:     reg,
		raw:     make(map[int32][]byte),
		decoded: make(map[int32]*sendtable.State),
	}
}

// SetRawBaseline сохраняет сырое базовое состояние класса (запись instancebaseline)
func (r *Registry) SetRawBaseline(classID int32, data []byte) {
	r.baselines.raw[classID] = append([]byte(nil), data...)
	delete(r.baselines.decoded, classID)
}

// HandleBaselineEntry обработчик изменений таблицы instancebaseline:
// ключ записи - десятичный идентификатор класса
func (r *Registry) HandleBaselineEntry(t *stringtable.Table, e stringtable.Entry) {
	if t.Name != stringtable.InstanceBaseline || e.Value == nil {
		return
	}
	id, err := strconv.ParseInt(e.Key, 10, 32)
	if err != nil {
		logging.Warn("Некорректный ключ базового состояния %q: %v", e.Key, err)
		return
	}
	r.SetRawBaseline(int32(id), e.Value)
}

// Baseline возвращает текущее базовое состояние класса (не копию).
// Для класса без базового состояния возвращается пустое.
func (r *Registry) Baseline(classID int32) (*sendtable.State, error) {
	b := r.baselines
	if st, ok := b.decoded[classID]; ok {
		return st, nil
	}

	st := sendtable.NewState()
	if raw, ok := b.raw[classID]; ok {
		c, ok := r.classes[classID]
		if !ok {
			return nil, fmt.Errorf("базовое состояние для неизвестного класса %d", classID)
		}
		fieldErrs, err := sendtable.ReadFields(bitstream.NewReader(raw), c.Serializer, st)
		var unresolved *sendtable.UnresolvedPathError
		if err != nil && !errors.As(err, &unresolved) {
			return nil, fmt.Errorf("ошибка декодирования базового состояния %s: %w", c.Name, err)
		}
		for _, fe := range fieldErrs {
			b.fieldErrors++
			logging.Warn("Базовое состояние %s: %v", c.Name, fe)
		}
	}
	b.decoded[classID] = st
	return st, nil
}

// UpdateBaseline перезаписывает одно поле базового состояния
func (r *Registry) UpdateBaseline(classID int32, name string, value any) error {
	st, err := r.Baseline(classID)
	if err != nil {
		return err
	}
	st.Set(name, value)
	return nil
}

// ApplyBaseline накладывает состояние сущности на базовое состояние класса
// (PacketEntities с update_baseline)
func (r *Registry) ApplyBaseline(classID int32, st *sendtable.State) error {
	base, err := r.Baseline(classID)
	if err != nil {
		return err
	}
	base.Merge(st)
	return nil
}

// Instantiate возвращает независимую копию базового состояния на момент вызова
func (r *Registry) Instantiate(classID int32) (*sendtable.State, error) {
	if _, ok := r.classes[classID]; !ok {
		return nil, fmt.Errorf("неизвестный класс %d", classID)
	}
	base, err := r.Baseline(classID)
	if err != nil {
		return nil, err
	}
	return base.Clone(), nil
}

// BaselineFieldErrors число полей базовых состояний, которые не удалось декодировать
func (r *Registry) BaselineFieldErrors() int { return r.baselines.fieldErrors }
