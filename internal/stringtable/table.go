package stringtable

import "sort"

// Entry одна запись таблицы строк
type Entry struct {
	Index int32
	Key   string
	Value []byte // nil, если значение не передавалось
}

// Options параметры кодирования записей таблицы
type Options struct {
	UserDataFixedSize    bool
	UserDataSize         int32
	UserDataSizeBits     int32
	Flags                int32
	UsingVarintBitcounts bool
}

// Table версионируемая таблица индекс -> (ключ, значение).
// Состояние всегда соответствует последнему применённому обновлению.
type Table struct {
	ID      int
	Name    string
	Options Options

	entries map[int32]*Entry
	byKey   map[string]int32
}

func newTable(id int, name string, opts Options) *Table {
	return &Table{
		ID:      id,
		Name:    name,
		Options: opts,
		entries: make(map[int32]*Entry),
		byKey:   make(map[string]int32),
	}
}

// Len количество записей
func (t *Table) Len() int { return len(t.entries) }

// ByIndex возвращает копию записи по индексу
func (t *Table) ByIndex(i int32) (Entry, bool) {
	e, ok := t.entries[i]
	if !ok {
		return Entry{}, false
	}
	return e.copy(), true
}

// ByKey возвращает копию записи по ключу
func (t *Table) ByKey(key string) (Entry, bool) {
	i, ok := t.byKey[key]
	if !ok {
		return Entry{}, false
	}
	return t.ByIndex(i)
}

// Entries возвращает копии всех записей в порядке индексов
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.copy())
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Index < out[b].Index })
	return out
}

func (t *Table) reset() {
	t.entries = make(map[int32]*Entry)
	t.byKey = make(map[string]int32)
}

// apply вставляет или обновляет запись и возвращает её итоговое состояние.
// У существующей записи пустой ключ и nil-значение означают "без изменений".
func (t *Table) apply(e Entry) Entry {
	cur, ok := t.entries[e.Index]
	if !ok {
		cur = &Entry{Index: e.Index, Key: e.Key, Value: e.Value}
		t.entries[e.Index] = cur
		if cur.Key != "" {
			t.byKey[cur.Key] = cur.Index
		}
		return cur.copy()
	}

	if e.Key != "" && e.Key != cur.Key {
		if idx, ok := t.byKey[cur.Key]; ok && idx == cur.Index {
			delete(t.byKey, cur.Key)
		}
		cur.Key = e.Key
		t.byKey[cur.Key] = cur.Index
	}
	if e.Value != nil {
		cur.Value = e.Value
	}
	return cur.copy()
}

func (e *Entry) copy() Entry {
	out := Entry{Index: e.Index, Key: e.Key}
	if e.Value != nil {
		out.Value = append([]byte{}, e.Value...)
	}
	return out
}
