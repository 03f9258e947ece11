package protocol

import (
	"fmt"

	"github.com/annel0/demoparse/internal/bitstream"
)

// MessageReader перебирает внутренние сообщения CDemoPacket.
// Формат: ubitvar(id), varuint32(size), size байт; пока осталось больше 8 бит.
type MessageReader struct {
	r   *bitstream.Reader
	err error
}

// NewMessageReader создает итератор по данным CDemoPacket.data
func NewMessageReader(data []byte) *MessageReader {
	return &MessageReader{r: bitstream.NewReader(data)}
}

// Next читает заголовок следующего сообщения.
// После true вызывающий обязан вызвать Read или Skip с тем же size.
func (m *MessageReader) Next() (PacketID, uint32, bool) {
	if m.err != nil || m.r.Remaining() <= 8 {
		return 0, 0, false
	}
	id := m.r.ReadUBitVar()
	size := m.r.ReadVarUint32()
	if err := m.r.Err(); err != nil {
		m.err = fmt.Errorf("ошибка чтения заголовка сообщения: %w", err)
		return 0, 0, false
	}
	if uint64(size)*8 > m.r.Remaining() {
		m.err = fmt.Errorf("сообщение %s: размер %d больше остатка пакета (%d бит)", PacketName(id), size, m.r.Remaining())
		return 0, 0, false
	}
	return id, size, true
}

// Read возвращает тело сообщения
func (m *MessageReader) Read(size uint32) []byte {
	return m.r.ReadBytes(int(size))
}

// Skip пропускает тело сообщения без копирования
func (m *MessageReader) Skip(size uint32) {
	m.r.Skip(uint64(size) * 8)
}

// Err первая ошибка разбора
func (m *MessageReader) Err() error {
	if m.err != nil {
		return m.err
	}
	return m.r.Err()
}

// WriteMessage добавляет сообщение в битовый поток в формате MessageReader
func WriteMessage(w *bitstream.Writer, id PacketID, payload []byte) {
	w.WriteUBitVar(id)
	w.WriteVarUint32(uint32(len(payload)))
	w.WriteBytes(payload)
}
