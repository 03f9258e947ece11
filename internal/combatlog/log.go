package combatlog

// Log хранит последние retention записей, старые вытесняются
type Log struct {
	entries []Entry
	start   int
	n       int
	total   int
}

// NewLog создает журнал; retention меньше 1 означает одну запись
func NewLog(retention int) *Log {
	return &Log{entries: make([]Entry, max(retention, 1))}
}

// Add разбирает сообщение и добавляет запись
func (l *Log) Add(payload []byte) (Entry, error) {
	e, err := Decode(payload)
	if err != nil {
		return Entry{}, err
	}
	l.Append(e)
	return e, nil
}

// Append добавляет готовую запись
func (l *Log) Append(e Entry) {
	l.total++
	if l.n < len(l.entries) {
		l.entries[(l.start+l.n)%len(l.entries)] = e
		l.n++
		return
	}
	l.entries[l.start] = e
	l.start = (l.start + 1) % len(l.entries)
}

// Len количество хранимых записей
func (l *Log) Len() int { return l.n }

// Total сколько записей было добавлено за всё время
func (l *Log) Total() int { return l.total }

// At запись по порядку, 0 самая старая из хранимых
func (l *Log) At(i int) (Entry, bool) {
	if i < 0 || i >= l.n {
		return Entry{}, false
	}
	return l.entries[(l.start+i)%len(l.entries)], true
}

// Entries копия хранимых записей от старых к новым
func (l *Log) Entries() []Entry {
	out := make([]Entry, l.n)
	for i := range out {
		out[i], _ = l.At(i)
	}
	return out
}
