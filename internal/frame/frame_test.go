package frame

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeLayout(t *testing.T) {
	payload := []byte("abc")
	data := Encode(TagSetting, payload)

	require.Len(t, data, HeaderSize+len(payload))
	require.Equal(t, byte(TagSetting), data[0])
	require.Equal(t, uint32(3), binary.LittleEndian.Uint32(data[8:12]))
	require.Equal(t, payload, data[HeaderSize:])
	for i := 1; i < HeaderSize; i++ {
		if i >= 8 && i < 12 {
			continue
		}
		require.Zero(t, data[i], "header byte %d", i)
	}
}

func TestEncodeEmptyPayload(t *testing.T) {
	data := Encode(TagPing, nil)
	require.Len(t, data, HeaderSize)
	require.Equal(t, byte(TagPing), data[0])
	require.Equal(t, uint32(0), binary.LittleEndian.Uint32(data[8:12]))
}

func TestMarshalExecuteAddsPadByte(t *testing.T) {
	data := Marshal(Execute{Script: "print(1)"})

	header, err := DecodeHeader(data)
	require.NoError(t, err)
	require.Equal(t, TagExecute, header.Tag)
	require.Equal(t, uint32(9), header.Length)
	require.Equal(t, []byte("print(1)"), data[HeaderSize:HeaderSize+8])
	require.Zero(t, data[len(data)-1])
	require.Len(t, data, HeaderSize+9)
}

func TestMarshalUpdateSetting(t *testing.T) {
	data := Marshal(UpdateSetting{Key: "flag", Value: true})

	header, err := DecodeHeader(data)
	require.NoError(t, err)
	require.Equal(t, TagSetting, header.Tag)
	require.Equal(t, uint32(len("flag true")+1), header.Length)
	require.Equal(t, []byte("flag true\x00"), data[HeaderSize:])

	data = Marshal(UpdateSetting{Key: "fpsUnlocker", Value: false})
	require.Equal(t, []byte("fpsUnlocker false\x00"), data[HeaderSize:])
}

func TestMarshalPing(t *testing.T) {
	require.Equal(t, Encode(TagPing, nil), Marshal(Ping{}))
}

func TestDecodeHeaderShort(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderSize-1))
	require.ErrorIs(t, err, ErrShortFrame)
}

func TestIsAliveInspectsFirstByteOnly(t *testing.T) {
	require.True(t, IsAlive([]byte{AliveMarker}))
	require.True(t, IsAlive([]byte{AliveMarker, 0xff, 0x00}))
	require.False(t, IsAlive([]byte{0x00, AliveMarker}))
	require.False(t, IsAlive(nil))
}

func TestTagString(t *testing.T) {
	require.Equal(t, "execute", TagExecute.String())
	require.Equal(t, "setting", TagSetting.String())
	require.Equal(t, "ping", TagPing.String())
	require.Equal(t, "tag(9)", Tag(9).String())
}
