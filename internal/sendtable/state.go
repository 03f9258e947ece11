package sendtable

// Property текущее значение одного поля
type Property struct {
	Key   uint64
	Name  string
	Value any
}

// State разреженная карта значений полей. Хранит только явно заданные поля
// в порядке их первой установки.
type State struct {
	props map[uint64]*Property
	order []uint64
}

// NewState создает пустое состояние
func NewState() *State {
	return &State{props: make(map[uint64]*Property)}
}

// Set устанавливает значение по полному имени поля
func (s *State) Set(name string, v any) {
	s.SetByKey(Key(name), name, v)
}

// SetByKey устанавливает значение по заранее вычисленному ключу
func (s *State) SetByKey(key uint64, name string, v any) {
	if p, ok := s.props[key]; ok {
		p.Value = v
		return
	}
	s.props[key] = &Property{Key: key, Name: name, Value: v}
	s.order = append(s.order, key)
}

// Get возвращает значение по ключу
func (s *State) Get(key uint64) (Property, bool) {
	p, ok := s.props[key]
	if !ok {
		return Property{}, false
	}
	return *p, true
}

// Lookup возвращает значение по полному имени
func (s *State) Lookup(name string) (Property, bool) {
	return s.Get(Key(name))
}

// Len количество заданных полей
func (s *State) Len() int { return len(s.order) }

// Keys ключи заданных полей в порядке установки
func (s *State) Keys() []uint64 {
	return append([]uint64(nil), s.order...)
}

// Clone возвращает независимую копию.
// Значения полей неизменяемы (числа, строки, массивы), поэтому копируются по значению.
func (s *State) Clone() *State {
	out := &State{
		props: make(map[uint64]*Property, len(s.props)),
		order: append([]uint64(nil), s.order...),
	}
	for k, p := range s.props {
		cp := *p
		out.props[k] = &cp
	}
	return out
}

// Merge накладывает значения other поверх текущих
func (s *State) Merge(other *State) {
	for _, k := range other.order {
		p := other.props[k]
		s.SetByKey(k, p.Name, p.Value)
	}
}
