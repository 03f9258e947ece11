package gameevent

// Event разобранное игровое событие
type Event struct {
	Descriptor *Descriptor
	Tick       int32 // тик сервера из сообщения; 0, если не передан

	values []any
}

// Name имя события
func (e *Event) Name() string { return e.Descriptor.Name }

// Get значение ключа по имени.
// Тип значения определяется типом ключа: string, float32, int32, bool или uint64.
func (e *Event) Get(key string) (any, bool) {
	i, ok := e.Descriptor.KeyIndex(key)
	if !ok || i >= len(e.values) || e.values[i] == nil {
		return nil, false
	}
	return e.values[i], true
}

// GetString строковое значение ключа
func (e *Event) GetString(key string) (string, bool) {
	v, ok := e.Get(key)
	s, isStr := v.(string)
	return s, ok && isStr
}

// GetInt целое значение ключа любого целого типа
func (e *Event) GetInt(key string) (int64, bool) {
	v, ok := e.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int32:
		return int64(n), true
	case uint64:
		return int64(n), true
	}
	return 0, false
}

// GetFloat вещественное значение ключа
func (e *Event) GetFloat(key string) (float32, bool) {
	v, ok := e.Get(key)
	f, isFloat := v.(float32)
	return f, ok && isFloat
}

// GetBool логическое значение ключа
func (e *Event) GetBool(key string) (bool, bool) {
	v, ok := e.Get(key)
	b, isBool := v.(bool)
	return b, ok && isBool
}

// Map все заданные ключи события
func (e *Event) Map() map[string]any {
	out := make(map[string]any, len(e.values))
	for i, v := range e.values {
		if v != nil {
			out[e.Descriptor.Keys[i].Name] = v
		}
	}
	return out
}
