// Package demotest собирает синтетические демо-потоки для тестов.
package demotest

import (
	"bytes"
	"encoding/binary"

	"github.com/annel0/demoparse/internal/bitstream"
	"github.com/annel0/demoparse/internal/demo"
	"github.com/annel0/demoparse/internal/protocol"
	"github.com/annel0/demoparse/internal/stringtable"
)

// Message внутреннее сообщение CDemoPacket
type Message struct {
	ID      protocol.PacketID
	Payload []byte
}

// Msg сокращение для Message
func Msg(id protocol.PacketID, payload []byte) Message {
	return Message{ID: id, Payload: payload}
}

// Builder пишет кадры в память в формате demo.Reader
type Builder struct {
	buf      []byte
	compress bool
}

// NewBuilder создает поток с заголовком; смещение FileInfo пока нулевое
func NewBuilder() *Builder {
	b := &Builder{}
	b.buf = append(b.buf, demo.Magic[:]...)
	b.buf = binary.LittleEndian.AppendUint32(b.buf, 0)
	b.buf = binary.LittleEndian.AppendUint32(b.buf, 0)
	return b
}

// Compressed включает сжатие всех последующих кадров
func (b *Builder) Compressed(on bool) *Builder {
	b.compress = on
	return b
}

// Frame добавляет произвольный кадр
func (b *Builder) Frame(kind demo.Kind, tick int32, payload []byte) *Builder {
	cmd := uint64(kind)
	if b.compress {
		cmd |= 64
		payload = demo.Compress(payload)
	}
	b.buf = binary.AppendUvarint(b.buf, cmd)
	b.buf = binary.AppendUvarint(b.buf, uint64(uint32(tick)))
	b.buf = binary.AppendUvarint(b.buf, uint64(len(payload)))
	b.buf = append(b.buf, payload...)
	return b
}

// FileHeader добавляет DEM_FileHeader
func (b *Builder) FileHeader(h *protocol.FileHeader) *Builder {
	return b.Frame(demo.KindFileHeader, -1, h.Marshal())
}

// SendTables добавляет DEM_SendTables: varint-длина и сериализованные схемы
func (b *Builder) SendTables(fs *protocol.FlattenedSerializer) *Builder {
	raw := fs.Marshal()
	data := binary.AppendUvarint(nil, uint64(len(raw)))
	data = append(data, raw...)
	return b.Frame(demo.KindSendTables, -1, (&protocol.SendTables{Data: data}).Marshal())
}

// ClassInfo добавляет DEM_ClassInfo
func (b *Builder) ClassInfo(classes ...protocol.ClassInfoEntry) *Builder {
	return b.Frame(demo.KindClassInfo, -1, (&protocol.ClassInfo{Classes: classes}).Marshal())
}

// SyncTick добавляет DEM_SyncTick
func (b *Builder) SyncTick(tick int32) *Builder {
	return b.Frame(demo.KindSyncTick, tick, nil)
}

// StringTables добавляет полный снимок таблиц строк
func (b *Builder) StringTables(tick int32, tables ...protocol.StringTableSnapshot) *Builder {
	return b.Frame(demo.KindStringTables, tick, (&protocol.StringTables{Tables: tables}).Marshal())
}

// Packet добавляет DEM_Packet с внутренними сообщениями
func (b *Builder) Packet(tick int32, msgs ...Message) *Builder {
	return b.Frame(demo.KindPacket, tick, packetPayload(msgs))
}

// SignonPacket добавляет DEM_SignonPacket
func (b *Builder) SignonPacket(tick int32, msgs ...Message) *Builder {
	return b.Frame(demo.KindSignonPacket, tick, packetPayload(msgs))
}

// FullPacket добавляет DEM_FullPacket: снимок таблиц строк (если задан) и пакет сообщений
func (b *Builder) FullPacket(tick int32, tables []protocol.StringTableSnapshot, msgs ...Message) *Builder {
	fp := &protocol.FullPacket{Packet: &protocol.DemoPacket{Data: packetData(msgs)}}
	if len(tables) > 0 {
		fp.StringTables = &protocol.StringTables{Tables: tables}
	}
	return b.Frame(demo.KindFullPacket, tick, fp.Marshal())
}

// FileInfo добавляет DEM_FileInfo и прописывает его смещение в заголовок
func (b *Builder) FileInfo(info *protocol.FileInfo) *Builder {
	binary.LittleEndian.PutUint32(b.buf[8:12], uint32(len(b.buf)))
	return b.Frame(demo.KindFileInfo, info.PlaybackTicks, info.Marshal())
}

// Stop добавляет DEM_Stop
func (b *Builder) Stop(tick int32) *Builder {
	return b.Frame(demo.KindStop, tick, nil)
}

// Bytes готовый поток
func (b *Builder) Bytes() []byte { return b.buf }

// Reader поток как io.ReadSeeker
func (b *Builder) Reader() *bytes.Reader { return bytes.NewReader(b.buf) }

func packetData(msgs []Message) []byte {
	w := bitstream.NewWriter()
	for _, m := range msgs {
		protocol.WriteMessage(w, m.ID, m.Payload)
	}
	return w.Bytes()
}

func packetPayload(msgs []Message) []byte {
	return (&protocol.DemoPacket{Data: packetData(msgs)}).Marshal()
}

// CreateTable svc_CreateStringTable с записями в битовом формате
func CreateTable(name string, opts stringtable.Options, entries ...stringtable.Entry) Message {
	msg := &protocol.CreateStringTable{
		Name:                 name,
		NumEntries:           int32(len(entries)),
		UserDataFixedSize:    opts.UserDataFixedSize,
		UserDataSize:         opts.UserDataSize,
		UserDataSizeBits:     opts.UserDataSizeBits,
		Flags:                opts.Flags,
		UsingVarintBitcounts: opts.UsingVarintBitcounts,
		StringData:           stringtable.EncodeEntries(entries, opts),
	}
	return Msg(protocol.SvcCreateStringTable, msg.Marshal())
}

// UpdateTable svc_UpdateStringTable для таблицы с порядковым номером id
func UpdateTable(id int32, opts stringtable.Options, entries ...stringtable.Entry) Message {
	msg := &protocol.UpdateStringTable{
		TableID:           id,
		NumChangedEntries: int32(len(entries)),
		StringData:        stringtable.EncodeEntries(entries, opts),
	}
	return Msg(protocol.SvcUpdateStringTable, msg.Marshal())
}
