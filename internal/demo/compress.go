package demo

import (
	"fmt"

	"github.com/klauspost/compress/snappy"
)

// maxDecodedSize ограничение на размер распакованного блока
const maxDecodedSize = 256 << 20

// Decompressor распаковывает полезную нагрузку кадра.
// Кадры и таблицы строк используют блочный формат snappy.
type Decompressor interface {
	Decompress(payload []byte) ([]byte, error)
}

type snappyDecompressor struct{}

// NewSnappyDecompressor возвращает распаковщик блочного snappy
func NewSnappyDecompressor() Decompressor { return snappyDecompressor{} }

func (snappyDecompressor) Decompress(payload []byte) ([]byte, error) {
	n, err := snappy.DecodedLen(payload)
	if err != nil {
		return nil, err
	}
	if n > maxDecodedSize {
		return nil, fmt.Errorf("распакованный размер %d превышает лимит %d", n, maxDecodedSize)
	}
	return snappy.Decode(make([]byte, n), payload)
}

// Decompress распаковывает snappy-блок; используется и вне кадров
// (сжатые таблицы строк и их значения)
func Decompress(payload []byte) ([]byte, error) {
	return snappyDecompressor{}.Decompress(payload)
}

// Compress сжимает данные в блочный snappy, нужен для построения тестовых потоков
func Compress(payload []byte) []byte {
	return snappy.Encode(nil, payload)
}
