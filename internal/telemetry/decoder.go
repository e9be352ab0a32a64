// Package telemetry decodes the vendor binary activity container into a
// stream of typed messages. The decoder is a pure transform: it validates
// framing and checksums, tracks message definitions, and hands raw field
// values to the caller. It never persists and never loads the whole file
// beyond its read buffer.
package telemetry

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/tormoder/fit/dyncrc16"
)

var (
	// ErrMalformedContainer indicates an invalid header, checksum or
	// truncated record. The file is rejected as a whole.
	ErrMalformedContainer = errors.New("malformed container")
	// ErrUnsupportedMessage indicates a message kind the decoder does not
	// recognize. Recoverable: the message was fully consumed and the caller
	// may keep reading.
	ErrUnsupportedMessage = errors.New("unsupported message type")
)

const (
	compressedHeaderMask       = 0x80
	compressedLocalMesgNumMask = 0x60
	compressedTimeMask         = 0x1F
	mesgDefinitionMask         = 0x40
	devDataMask                = 0x20
	localMesgNumMask           = 0x0F

	headerSizeNoCRC = 12
	headerSizeCRC   = 14
)

type baseType uint8

const (
	baseEnum    baseType = 0x00
	baseSint8   baseType = 0x01
	baseUint8   baseType = 0x02
	baseSint16  baseType = 0x83
	baseUint16  baseType = 0x84
	baseSint32  baseType = 0x85
	baseUint32  baseType = 0x86
	baseString  baseType = 0x07
	baseFloat32 baseType = 0x88
	baseFloat64 baseType = 0x89
	baseUint8z  baseType = 0x0A
	baseUint16z baseType = 0x8B
	baseUint32z baseType = 0x8C
	baseByte    baseType = 0x0D
	baseSint64  baseType = 0x8E
	baseUint64  baseType = 0x8F
	baseUint64z baseType = 0x90
)

var baseSizes = map[baseType]int{
	baseEnum: 1, baseSint8: 1, baseUint8: 1, baseSint16: 2, baseUint16: 2,
	baseSint32: 4, baseUint32: 4, baseString: 1, baseFloat32: 4,
	baseFloat64: 8, baseUint8z: 1, baseUint16z: 2, baseUint32z: 4,
	baseByte: 1, baseSint64: 8, baseUint64: 8, baseUint64z: 8,
}

type fieldDef struct {
	num     uint8
	size    uint8
	baseRaw uint8
}

type definition struct {
	global    uint16
	arch      binary.ByteOrder
	fields    []fieldDef
	devFields []uint8 // sizes only; developer field content is skipped
}

// Decoder reads a container sequentially from an io.Reader.
type Decoder struct {
	r              *bufio.Reader
	crc            dyncrc16.Hash16
	remaining      int64
	defs           map[uint8]*definition
	lastTimestamp  uint32
	lastTimeOffset int32
	started        bool
	done           bool
}

// NewDecoder wraps r. The header is validated lazily on the first Next call.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:    bufio.NewReader(r),
		crc:  dyncrc16.New(),
		defs: make(map[uint8]*definition),
	}
}

// Next returns the next decoded message. It returns io.EOF after the final
// message once the trailing checksum has been verified. Messages of an
// unrecognized kind are returned together with ErrUnsupportedMessage; they
// are fully consumed and decoding may continue. Any other error is fatal
// for the file.
func (d *Decoder) Next() (*Message, error) {
	if d.done {
		return nil, io.EOF
	}
	if !d.started {
		if err := d.parseHeader(); err != nil {
			return nil, err
		}
		d.started = true
	}

	for {
		if d.remaining == 0 {
			return nil, d.finish()
		}

		hdr, err := d.readData(1)
		if err != nil {
			return nil, err
		}
		headerByte := hdr[0]

		switch {
		case headerByte&compressedHeaderMask == compressedHeaderMask:
			local := (headerByte & compressedLocalMesgNumMask) >> 5
			def, ok := d.defs[local]
			if !ok {
				return nil, fmt.Errorf("%w: data message references undefined local type %d", ErrMalformedContainer, local)
			}
			return d.readDataMessage(def, headerByte, true)
		case headerByte&mesgDefinitionMask == mesgDefinitionMask:
			if err := d.readDefinition(headerByte); err != nil {
				return nil, err
			}
		default:
			local := headerByte & localMesgNumMask
			def, ok := d.defs[local]
			if !ok {
				return nil, fmt.Errorf("%w: data message references undefined local type %d", ErrMalformedContainer, local)
			}
			return d.readDataMessage(def, headerByte, false)
		}
	}
}

func (d *Decoder) parseHeader() error {
	first := make([]byte, 1)
	if _, err := io.ReadFull(d.r, first); err != nil {
		return fmt.Errorf("%w: missing header", ErrMalformedContainer)
	}
	size := first[0]
	if size != headerSizeNoCRC && size != headerSizeCRC {
		return fmt.Errorf("%w: invalid header size %d", ErrMalformedContainer, size)
	}

	rest := make([]byte, int(size)-1)
	if _, err := io.ReadFull(d.r, rest); err != nil {
		return fmt.Errorf("%w: truncated header", ErrMalformedContainer)
	}
	header := append(first, rest...)

	if magic := string(header[8:12]); magic != ".FIT" {
		return fmt.Errorf("%w: bad magic %q", ErrMalformedContainer, magic)
	}
	if size == headerSizeCRC {
		stored := binary.LittleEndian.Uint16(header[12:14])
		if stored != 0 && stored != dyncrc16.Checksum(header[:12]) {
			return fmt.Errorf("%w: header checksum mismatch", ErrMalformedContainer)
		}
	}

	// The trailing file checksum covers the header too.
	d.crc.Write(header)
	d.remaining = int64(binary.LittleEndian.Uint32(header[4:8]))
	return nil
}

func (d *Decoder) finish() error {
	trailer := make([]byte, 2)
	if _, err := io.ReadFull(d.r, trailer); err != nil {
		return fmt.Errorf("%w: missing trailing checksum", ErrMalformedContainer)
	}
	stored := binary.LittleEndian.Uint16(trailer)
	if computed := d.crc.Sum16(); stored != computed {
		return fmt.Errorf("%w: checksum mismatch (stored 0x%04X, computed 0x%04X)", ErrMalformedContainer, stored, computed)
	}
	d.done = true
	return io.EOF
}

// readData reads n bytes from the data section, feeding the running
// checksum and accounting against the declared data size.
func (d *Decoder) readData(n int) ([]byte, error) {
	if int64(n) > d.remaining {
		return nil, fmt.Errorf("%w: record overruns declared data size", ErrMalformedContainer)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, fmt.Errorf("%w: truncated record", ErrMalformedContainer)
	}
	d.crc.Write(buf)
	d.remaining -= int64(n)
	return buf, nil
}

func (d *Decoder) readDefinition(headerByte uint8) error {
	local := headerByte & localMesgNumMask

	fixed, err := d.readData(5) // reserved, arch, global(2), field count
	if err != nil {
		return err
	}

	var arch binary.ByteOrder
	switch fixed[1] {
	case 0:
		arch = binary.LittleEndian
	case 1:
		arch = binary.BigEndian
	default:
		return fmt.Errorf("%w: invalid architecture byte %d", ErrMalformedContainer, fixed[1])
	}

	def := &definition{
		global: arch.Uint16(fixed[2:4]),
		arch:   arch,
	}

	numFields := int(fixed[4])
	for i := 0; i < numFields; i++ {
		raw, err := d.readData(3)
		if err != nil {
			return err
		}
		def.fields = append(def.fields, fieldDef{num: raw[0], size: raw[1], baseRaw: raw[2]})
	}

	if headerByte&devDataMask == devDataMask {
		countRaw, err := d.readData(1)
		if err != nil {
			return err
		}
		for i := 0; i < int(countRaw[0]); i++ {
			raw, err := d.readData(3)
			if err != nil {
				return err
			}
			def.devFields = append(def.devFields, raw[1])
		}
	}

	d.defs[local] = def
	return nil
}

func (d *Decoder) readDataMessage(def *definition, headerByte uint8, compressed bool) (*Message, error) {
	msg := &Message{
		Kind:      kindForGlobal(def.global),
		GlobalNum: def.global,
		fields:    make(map[uint8]fieldValue, len(def.fields)),
	}

	if compressed {
		offset := int32(headerByte & compressedTimeMask)
		if d.lastTimestamp != 0 {
			d.lastTimestamp += uint32((offset - d.lastTimeOffset) & int32(compressedTimeMask))
			d.lastTimeOffset = offset
			msg.fields[FieldTimestamp] = fieldValue{
				num: float64(d.lastTimestamp),
				raw: uint64(d.lastTimestamp),
			}
		}
	}

	for _, fd := range def.fields {
		raw, err := d.readData(int(fd.size))
		if err != nil {
			return nil, err
		}
		value := decodeField(raw, fd, def.arch)
		if fd.num == FieldTimestamp && !value.invalid && !value.isString {
			d.lastTimestamp = uint32(value.raw)
			d.lastTimeOffset = int32(d.lastTimestamp) & int32(compressedTimeMask)
		}
		msg.fields[fd.num] = value
	}

	for _, size := range def.devFields {
		if _, err := d.readData(int(size)); err != nil {
			return nil, err
		}
	}

	if msg.Kind == KindUnknown {
		return msg, fmt.Errorf("%w: global message %d", ErrUnsupportedMessage, def.global)
	}
	return msg, nil
}

func decodeField(raw []byte, fd fieldDef, arch binary.ByteOrder) fieldValue {
	bt := normalizeBaseType(fd.baseRaw)

	if bt == baseString {
		return fieldValue{isString: true, str: cString(raw), invalid: len(raw) == 0}
	}

	size, ok := baseSizes[bt]
	if !ok || size <= 0 || len(raw) != size {
		// Arrays and unknown base types are consumed but not surfaced;
		// none of the channels this system reads are array-valued.
		return fieldValue{invalid: true}
	}

	switch bt {
	case baseEnum:
		v := raw[0]
		return fieldValue{num: float64(v), raw: uint64(v), invalid: v == 0xFF}
	case baseUint8:
		v := raw[0]
		return fieldValue{num: float64(v), raw: uint64(v), invalid: v == 0xFF}
	case baseUint8z:
		v := raw[0]
		return fieldValue{num: float64(v), raw: uint64(v), invalid: v == 0x00}
	case baseSint8:
		v := int8(raw[0])
		return fieldValue{num: float64(v), raw: uint64(raw[0]), invalid: v == 0x7F}
	case baseUint16:
		v := arch.Uint16(raw)
		return fieldValue{num: float64(v), raw: uint64(v), invalid: v == 0xFFFF}
	case baseUint16z:
		v := arch.Uint16(raw)
		return fieldValue{num: float64(v), raw: uint64(v), invalid: v == 0x0000}
	case baseSint16:
		v := int16(arch.Uint16(raw))
		return fieldValue{num: float64(v), raw: uint64(arch.Uint16(raw)), invalid: v == 0x7FFF}
	case baseUint32:
		v := arch.Uint32(raw)
		return fieldValue{num: float64(v), raw: uint64(v), invalid: v == 0xFFFFFFFF}
	case baseUint32z:
		v := arch.Uint32(raw)
		return fieldValue{num: float64(v), raw: uint64(v), invalid: v == 0x00000000}
	case baseSint32:
		v := int32(arch.Uint32(raw))
		return fieldValue{num: float64(v), raw: uint64(arch.Uint32(raw)), invalid: v == 0x7FFFFFFF}
	case baseFloat32:
		bits := arch.Uint32(raw)
		return fieldValue{num: float64(math.Float32frombits(bits)), raw: uint64(bits), invalid: bits == 0xFFFFFFFF}
	case baseFloat64:
		bits := arch.Uint64(raw)
		return fieldValue{num: math.Float64frombits(bits), raw: bits, invalid: bits == 0xFFFFFFFFFFFFFFFF}
	case baseSint64:
		v := int64(arch.Uint64(raw))
		return fieldValue{num: float64(v), raw: arch.Uint64(raw), invalid: v == 0x7FFFFFFFFFFFFFFF}
	case baseUint64:
		v := arch.Uint64(raw)
		return fieldValue{num: float64(v), raw: v, invalid: v == 0xFFFFFFFFFFFFFFFF}
	case baseUint64z:
		v := arch.Uint64(raw)
		return fieldValue{num: float64(v), raw: v, invalid: v == 0}
	case baseByte:
		v := raw[0]
		return fieldValue{num: float64(v), raw: uint64(v), invalid: v == 0xFF}
	default:
		return fieldValue{invalid: true}
	}
}

// normalizeBaseType maps the 5-bit compressed encoding some writers emit
// onto the canonical base type byte.
func normalizeBaseType(b uint8) baseType {
	switch b & 0x1F {
	case 0x03:
		return baseSint16
	case 0x04:
		return baseUint16
	case 0x05:
		return baseSint32
	case 0x06:
		return baseUint32
	case 0x08:
		return baseFloat32
	case 0x09:
		return baseFloat64
	case 0x0B:
		return baseUint16z
	case 0x0C:
		return baseUint32z
	case 0x0E:
		return baseSint64
	case 0x0F:
		return baseUint64
	case 0x10:
		return baseUint64z
	default:
		return baseType(b & 0x1F)
	}
}

func cString(raw []byte) string {
	for i, b := range raw {
		if b == 0x00 {
			return string(raw[:i])
		}
	}
	return string(raw)
}
