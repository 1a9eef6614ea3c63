package fiscal

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	data := []byte("<GET STATUS=''/>")
	frame, err := EncodeFrame(data)
	require.NoError(t, err)

	assert.Equal(t, byte(stx), frame[0])
	assert.Equal(t, byte(len(data)), frame[1])
	assert.Equal(t, byte(0), frame[2])
	assert.Equal(t, byte(etx), frame[len(frame)-2])

	got, err := ReadFrame(bytes.NewReader(frame))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestReadFrameRejectsCorruption(t *testing.T) {
	frame, err := EncodeFrame([]byte("<OK/>"))
	require.NoError(t, err)

	badLRC := append([]byte(nil), frame...)
	badLRC[len(badLRC)-1] ^= 0xFF
	_, err = ReadFrame(bytes.NewReader(badLRC))
	assert.True(t, errors.Is(err, ErrInvalidResponse))

	badSTX := append([]byte(nil), frame...)
	badSTX[0] = 0x7F
	_, err = ReadFrame(bytes.NewReader(badSTX))
	assert.True(t, errors.Is(err, ErrInvalidResponse))
}

func TestReadFrameTruncated(t *testing.T) {
	frame, err := EncodeFrame([]byte("<OK STS='00000000'/>"))
	require.NoError(t, err)

	_, err = ReadFrame(bytes.NewReader(frame[:6]))
	assert.Error(t, err)
}

func TestEncodeFrameEmpty(t *testing.T) {
	_, err := EncodeFrame(nil)
	assert.Error(t, err)
}

func TestEncodeFrameTooLong(t *testing.T) {
	_, err := EncodeFrame(make([]byte, maxFrame+1))
	assert.True(t, errors.Is(err, ErrCommandTooLong), "got %v", err)

	frame, err := EncodeFrame(make([]byte, maxFrame))
	require.NoError(t, err)
	assert.Len(t, frame, maxFrame+5)
}

type zeroReader struct{}

func (zeroReader) Read([]byte) (int, error) { return 0, nil }

func TestReadFullZeroReadIsTimeout(t *testing.T) {
	err := readFull(zeroReader{}, make([]byte, 4))
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestCP1251RoundTrip(t *testing.T) {
	enc := encodeCP1251("Хляб Бял")
	assert.Len(t, enc, len([]rune("Хляб Бял")))

	dec, err := toUTF8(enc)
	require.NoError(t, err)
	assert.Equal(t, "Хляб Бял", string(dec))
}

func TestEncodeCP1251ReplacesUnsupported(t *testing.T) {
	enc := encodeCP1251("Кафе ☕")
	dec, err := toUTF8(enc)
	require.NoError(t, err)
	assert.Equal(t, "Кафе ?", string(dec))
}

func TestParseReply(t *testing.T) {
	flags, err := parseReply([]byte("<OK STS='00000060'/>"))
	require.NoError(t, err)
	assert.True(t, flags.Has(FlagFiscalReceiptOpen))
	assert.True(t, flags.Has(FlagNearPaperEnd))
	assert.False(t, flags.Has(FlagEndOfPaper))

	flags, err = parseReply([]byte("<OK/>"))
	require.NoError(t, err)
	assert.Equal(t, Flags(0), flags)

	_, err = parseReply([]byte("<ERROR No='101' STS='00000040'/>"))
	var devErr *DeviceError
	require.True(t, errors.As(err, &devErr))
	assert.Equal(t, "101", devErr.Code)
	assert.Equal(t, FlagFiscalReceiptOpen, devErr.Flags)

	_, err = parseReply([]byte("<OK STS='zz'/>"))
	assert.True(t, errors.Is(err, ErrInvalidResponse))

	_, err = parseReply([]byte("<WAT/>"))
	assert.True(t, errors.Is(err, ErrInvalidResponse))

	_, err = parseReply([]byte("garbage"))
	assert.True(t, errors.Is(err, ErrInvalidResponse))
}

func TestFlagsBits(t *testing.T) {
	f := FlagGeneralError | FlagCoverOpen | FlagOverflow
	assert.Equal(t, []Flags{FlagGeneralError, FlagCoverOpen, FlagOverflow}, f.Bits())
	assert.Empty(t, Flags(0).Bits())
}

func TestEscapeXMLText(t *testing.T) {
	assert.Equal(t, "Tom &amp; Jerry &lt;3 &apos;x&apos;", escapeXMLText("Tom & Jerry <3 'x'"))
}
