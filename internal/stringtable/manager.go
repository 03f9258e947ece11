package stringtable

import (
	"fmt"
	"sort"

	"github.com/annel0/demoparse/internal/demo"
	"github.com/annel0/demoparse/internal/protocol"
)

// InstanceBaseline имя таблицы с базовыми состояниями классов
const InstanceBaseline = "instancebaseline"

// ChangeHook вызывается для каждой применённой записи
type ChangeHook func(t *Table, e Entry)

// Manager хранит все таблицы строк одной сессии разбора.
// Изменяется только потоком разбора; наружу отдаются копии записей.
type Manager struct {
	tables []*Table
	byName map[string]*Table
	hooks  []ChangeHook
}

// NewManager создает пустой менеджер
func NewManager() *Manager {
	return &Manager{byName: make(map[string]*Table)}
}

// OnChange регистрирует обработчик изменений
func (m *Manager) OnChange(h ChangeHook) {
	m.hooks = append(m.hooks, h)
}

// Create создает новую таблицу и заполняет её записями
func (m *Manager) Create(name string, opts Options, entries []Entry) *Table {
	t := newTable(len(m.tables), name, opts)
	m.tables = append(m.tables, t)
	m.byName[name] = t
	m.applyEntries(t, entries)
	return t
}

// Update применяет записи к существующей таблице.
// При fullReset все прежние записи удаляются до вставки новых.
func (m *Manager) Update(name string, entries []Entry, fullReset bool) error {
	t, ok := m.byName[name]
	if !ok {
		return fmt.Errorf("таблица строк %q не найдена", name)
	}
	if fullReset {
		t.reset()
	}
	m.applyEntries(t, entries)
	return nil
}

func (m *Manager) applyEntries(t *Table, entries []Entry) {
	for _, e := range entries {
		applied := t.apply(e)
		for _, h := range m.hooks {
			h(t, applied)
		}
	}
}

// HandleCreate обрабатывает svc_CreateStringTable
func (m *Manager) HandleCreate(msg *protocol.CreateStringTable) (*Table, error) {
	data := msg.StringData
	if msg.DataCompressed {
		var err error
		data, err = demo.Decompress(data)
		if err != nil {
			return nil, fmt.Errorf("ошибка распаковки таблицы %q: %w", msg.Name, err)
		}
	}

	opts := Options{
		UserDataFixedSize:    msg.UserDataFixedSize,
		UserDataSize:         msg.UserDataSize,
		UserDataSizeBits:     msg.UserDataSizeBits,
		Flags:                msg.Flags,
		UsingVarintBitcounts: msg.UsingVarintBitcounts,
	}
	entries, err := ParseEntries(data, int(msg.NumEntries), opts)
	if err != nil {
		return nil, fmt.Errorf("таблица %q: %w", msg.Name, err)
	}
	return m.Create(msg.Name, opts, entries), nil
}

// HandleUpdate обрабатывает svc_UpdateStringTable
func (m *Manager) HandleUpdate(msg *protocol.UpdateStringTable) (*Table, error) {
	t, ok := m.ByID(int(msg.TableID))
	if !ok {
		return nil, fmt.Errorf("таблица строк с id %d не найдена", msg.TableID)
	}
	entries, err := ParseEntries(msg.StringData, int(msg.NumChangedEntries), t.Options)
	if err != nil {
		return nil, fmt.Errorf("таблица %q: %w", t.Name, err)
	}
	m.applyEntries(t, entries)
	return t, nil
}

// HandleSnapshot применяет полный снимок DEM_StringTables: каждая таблица
// из снимка полностью заменяется его содержимым
func (m *Manager) HandleSnapshot(msg *protocol.StringTables) {
	for _, st := range msg.Tables {
		entries := make([]Entry, 0, len(st.Items))
		for i, it := range st.Items {
			value := it.Data
			if value == nil {
				value = []byte{}
			}
			entries = append(entries, Entry{Index: int32(i), Key: it.Key, Value: value})
		}

		if _, ok := m.byName[st.TableName]; !ok {
			m.Create(st.TableName, Options{Flags: st.TableFlags}, entries)
			continue
		}
		_ = m.Update(st.TableName, entries, true)
	}
}

// Clear удаляет все таблицы (svc_ClearAllStringTables)
func (m *Manager) Clear() {
	m.tables = nil
	m.byName = make(map[string]*Table)
}

// Reset очищает записи всех таблиц, сохраняя сами таблицы и их параметры.
// Обработчики изменений не вызываются.
func (m *Manager) Reset() {
	for _, t := range m.tables {
		t.reset()
	}
}

// ByName возвращает таблицу по имени
func (m *Manager) ByName(name string) (*Table, bool) {
	t, ok := m.byName[name]
	return t, ok
}

// ByID возвращает таблицу по порядковому номеру создания
func (m *Manager) ByID(id int) (*Table, bool) {
	if id < 0 || id >= len(m.tables) {
		return nil, false
	}
	return m.tables[id], true
}

// LookupByKey возвращает значение записи по ключу
func (m *Manager) LookupByKey(table, key string) ([]byte, bool) {
	t, ok := m.byName[table]
	if !ok {
		return nil, false
	}
	e, ok := t.ByKey(key)
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// LookupByIndex возвращает ключ записи по индексу
func (m *Manager) LookupByIndex(table string, index int32) (string, bool) {
	t, ok := m.byName[table]
	if !ok {
		return "", false
	}
	e, ok := t.ByIndex(index)
	if !ok {
		return "", false
	}
	return e.Key, true
}

// Names возвращает имена таблиц в алфавитном порядке
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.byName))
	for name := range m.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
