package fiscal

import (
	"bytes"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/charmap"
)

const (
	stx       = 0x02
	etx       = 0x03
	maxFrame  = 0xFFFF
	frameHead = 3 // STX + LEN(2)
)

// EncodeFrame упаковывает данные в кадр STX LEN(LE) DATA ETX LRC.
// LRC считается XOR по всем байтам от STX до ETX включительно.
func EncodeFrame(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrInvalidResponse)
	}
	if len(data) > maxFrame {
		return nil, fmt.Errorf("%w (%d bytes)", ErrCommandTooLong, len(data))
	}
	packet := make([]byte, 0, len(data)+5)
	packet = append(packet, stx)
	lenBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBuf, uint16(len(data)))
	packet = append(packet, lenBuf...)
	packet = append(packet, data...)
	packet = append(packet, etx)
	packet = append(packet, lrc(packet))
	return packet, nil
}

// ReadFrame читает один кадр и возвращает полезную нагрузку.
func ReadFrame(r io.Reader) ([]byte, error) {
	head := make([]byte, frameHead)
	if err := readFull(r, head); err != nil {
		return nil, err
	}
	if head[0] != stx {
		return nil, fmt.Errorf("%w: expected STX, got 0x%02X", ErrInvalidResponse, head[0])
	}
	size := int(binary.LittleEndian.Uint16(head[1:3]))

	rest := make([]byte, size+2)
	if err := readFull(r, rest); err != nil {
		return nil, err
	}
	if rest[size] != etx {
		return nil, fmt.Errorf("%w: expected ETX", ErrInvalidResponse)
	}

	full := append(head, rest[:size+1]...)
	if lrc(full) != rest[size+1] {
		return nil, fmt.Errorf("%w: LRC mismatch", ErrInvalidResponse)
	}
	return rest[:size], nil
}

// readFull как io.ReadFull, но пустое чтение без ошибки считается таймаутом:
// так ведёт себя COM-порт по истечении ReadTimeout.
func readFull(r io.Reader, buf []byte) error {
	read := 0
	for read < len(buf) {
		n, err := r.Read(buf[read:])
		read += n
		if err != nil {
			if err == io.EOF && read > 0 && read < len(buf) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if n == 0 {
			return ErrTimeout
		}
	}
	return nil
}

func lrc(b []byte) byte {
	var sum byte
	for _, c := range b {
		sum ^= c
	}
	return sum
}

// encodeCP1251 конвертирует строку из UTF-8 в Windows-1251.
// Символы, которых нет в кодовой странице, заменяются на '?'.
func encodeCP1251(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := charmap.Windows1251.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}

func toUTF8(data []byte) ([]byte, error) {
	r, err := charset.NewReaderLabel("windows-1251", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

// escapeXMLText экранирует спецсимволы XML в тексте и значениях атрибутов.
func escapeXMLText(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"'", "&apos;",
	)
	return r.Replace(s)
}

type reply struct {
	XMLName xml.Name
	Code    string `xml:"No,attr"`
	Status  string `xml:"STS,attr"`
}

// parseReply разбирает ответ устройства. ERROR превращается в *DeviceError.
func parseReply(data []byte) (Flags, error) {
	var rep reply
	if err := xml.Unmarshal(data, &rep); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	var flags Flags
	if rep.Status != "" {
		v, err := strconv.ParseUint(rep.Status, 16, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: bad STS %q", ErrInvalidResponse, rep.Status)
		}
		flags = Flags(v)
	}

	switch rep.XMLName.Local {
	case "OK":
		return flags, nil
	case "ERROR":
		return flags, &DeviceError{Code: rep.Code, Flags: flags}
	default:
		return 0, fmt.Errorf("%w: unexpected element <%s>", ErrInvalidResponse, rep.XMLName.Local)
	}
}
