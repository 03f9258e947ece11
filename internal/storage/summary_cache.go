// Package storage хранит сводки разобранных демо-файлов в BadgerDB,
// чтобы повторный запуск demoinfo не разбирал неизменившийся файл.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v3"
)

// ErrNotFound сводки для файла нет в кэше
var ErrNotFound = errors.New("сводка не найдена")

// Summary итог разбора одного файла
type Summary struct {
	Hash       uint64    `json:"hash"` // xxhash содержимого
	Size       int64     `json:"size"` // размер файла в байтах
	MapName    string    `json:"map_name"`
	ServerName string    `json:"server_name"`
	BuildNum   int32     `json:"build_num"`
	Ticks      int       `json:"ticks"`
	Frames     int       `json:"frames"`
	LastTick   int32     `json:"last_tick"`
	Entities   int       `json:"entities"` // живых сущностей в конце разбора
	Classes    int       `json:"classes"`
	Tables     []string  `json:"tables"`
	Packets    int       `json:"packets"`     // переданных наблюдателю сообщений
	GameEvents int       `json:"game_events"` // разобранных игровых событий
	Errors     int       `json:"errors"`      // пропущенных восстановимых ошибок
	ParsedAt   time.Time `json:"parsed_at"`
	Duration   float64   `json:"duration_seconds"`
}

// SummaryCache кэш сводок по хэшу содержимого файла
type SummaryCache struct {
	db     *badger.DB
	dbPath string
	mutex  sync.RWMutex
	ready  bool
}

// NewSummaryCache открывает кэш в каталоге dataPath/summaries
func NewSummaryCache(dataPath string) (*SummaryCache, error) {
	c := &SummaryCache{
		dbPath: filepath.Join(dataPath, "summaries"),
	}

	opts := badger.DefaultOptions(c.dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	var err error
	c.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	c.ready = true
	return c, nil
}

// HashReader xxhash всего содержимого r
func HashReader(r io.Reader) (uint64, int64, error) {
	h := xxhash.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return 0, n, err
	}
	return h.Sum64(), n, nil
}

// HashFile xxhash содержимого файла и его размер
func HashFile(path string) (uint64, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	return HashReader(f)
}

func summaryKey(hash uint64) []byte {
	return []byte(fmt.Sprintf("summary:%016x", hash))
}

// Save сохраняет сводку под s.Hash
func (c *SummaryCache) Save(s *Summary) error {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if !c.ready {
		return fmt.Errorf("кэш закрыт")
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("ошибка сериализации сводки: %w", err)
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(summaryKey(s.Hash), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения сводки в BadgerDB: %w", err)
	}
	return nil
}

// Load возвращает сводку или ErrNotFound
func (c *SummaryCache) Load(hash uint64) (*Summary, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if !c.ready {
		return nil, fmt.Errorf("кэш закрыт")
	}

	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(summaryKey(hash))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения сводки из BadgerDB: %w", err)
	}

	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("ошибка десериализации сводки: %w", err)
	}
	return &s, nil
}

// Delete удаляет сводку; отсутствие ключа не ошибка
func (c *SummaryCache) Delete(hash uint64) error {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if !c.ready {
		return fmt.Errorf("кэш закрыт")
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(summaryKey(hash))
	})
}

// Len число сохранённых сводок
func (c *SummaryCache) Len() (int, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if !c.ready {
		return 0, fmt.Errorf("кэш закрыт")
	}

	n := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte("summary:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close закрывает кэш
func (c *SummaryCache) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.ready {
		return nil
	}

	c.ready = false
	return c.db.Close()
}
