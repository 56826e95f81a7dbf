package vm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// magic identifies a flattened VM program file (spec.md §6: "Flat VM
// program file format"). version is bumped whenever the encoding below
// changes incompatibly.
var magic = [4]byte{'S', 'A', 'G', 'E'}

const formatVersion uint32 = 1

const (
	variantCore     byte = 0
	variantStandard byte = 1
)

// Encode serializes a flattened Program to the binary format described in
// spec.md §6: header magic, version, core/standard variant flag, function
// count, then each function's id-and-length-prefixed instruction stream,
// then the main stream (also length-prefixed, for symmetry with the
// function records).
func Encode(p *Program) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(magic[:])
	writeU32(&buf, formatVersion)
	if p.Standard {
		buf.WriteByte(variantStandard)
	} else {
		buf.WriteByte(variantCore)
	}
	writeU32(&buf, uint32(len(p.Functions)))

	for id, fn := range p.Functions {
		encoded, err := encodeStream(fn.Code)
		if err != nil {
			return nil, fmt.Errorf("function %d: %w", id, err)
		}
		writeU32(&buf, uint32(id))
		writeU32(&buf, uint32(len(encoded)))
		buf.Write(encoded)
	}

	encodedMain, err := encodeStream(p.Main)
	if err != nil {
		return nil, fmt.Errorf("main: %w", err)
	}
	writeU32(&buf, uint32(len(encodedMain)))
	buf.Write(encodedMain)

	return buf.Bytes(), nil
}

// Decode parses a Program previously written by Encode.
func Decode(data []byte) (*Program, error) {
	r := bytes.NewReader(data)

	var gotMagic [4]byte
	if _, err := io.ReadFull(r, gotMagic[:]); err != nil {
		return nil, fmt.Errorf("reading magic: %w", err)
	}
	if gotMagic != magic {
		return nil, fmt.Errorf("not a sage vm program (bad magic %q)", gotMagic)
	}

	version, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("reading version: %w", err)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("unsupported program format version %d", version)
	}

	variant, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("reading variant: %w", err)
	}

	count, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("reading function count: %w", err)
	}

	p := &Program{
		Standard:  variant == variantStandard,
		Functions: make([]FuncBody, count),
	}

	for i := uint32(0); i < count; i++ {
		id, err := readU32(r)
		if err != nil {
			return nil, fmt.Errorf("reading function %d id: %w", i, err)
		}
		length, err := readU32(r)
		if err != nil {
			return nil, fmt.Errorf("reading function %d length: %w", i, err)
		}
		body := make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("reading function %d body: %w", i, err)
		}
		code, err := decodeStream(body)
		if err != nil {
			return nil, fmt.Errorf("decoding function %d: %w", id, err)
		}
		if int(id) >= len(p.Functions) {
			return nil, fmt.Errorf("function id %d out of range (count %d)", id, count)
		}
		p.Functions[id] = FuncBody{Code: code}
	}

	mainLen, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("reading main length: %w", err)
	}
	mainBody := make([]byte, mainLen)
	if _, err := io.ReadFull(r, mainBody); err != nil {
		return nil, fmt.Errorf("reading main body: %w", err)
	}
	p.Main, err = decodeStream(mainBody)
	if err != nil {
		return nil, fmt.Errorf("decoding main: %w", err)
	}

	return p, nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func readU32(r *bytes.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(tmp[:]), nil
}

func encodeStream(code []Instr) ([]byte, error) {
	var buf bytes.Buffer
	for _, in := range code {
		buf.WriteByte(byte(in.Op))
		switch in.Op {
		case Set:
			writeUvarint(&buf, uint64(len(in.Ints)))
			for _, v := range in.Ints {
				writeI64(&buf, v)
			}
		case Move:
			writeI64(&buf, in.N)
		case Store, Load:
			if in.N < 0 {
				return nil, fmt.Errorf("%s: negative tape offset %d cannot be encoded", in.Op, in.N)
			}
			writeUvarint(&buf, uint64(in.N))
		case SetFloat:
			var tmp [8]byte
			binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(in.Float))
			buf.Write(tmp[:])
		case Get:
			buf.WriteByte(byte(in.Input.Mode))
			writeU32(&buf, uint32(in.Input.Channel))
		case Put:
			buf.WriteByte(byte(in.Output.Mode))
			writeU32(&buf, uint32(in.Output.Channel))
		case Comment:
			writeUvarint(&buf, uint64(len(in.Comment)))
			buf.WriteString(in.Comment)
		}
	}
	return buf.Bytes(), nil
}

func decodeStream(data []byte) ([]Instr, error) {
	r := bytes.NewReader(data)
	var code []Instr
	for r.Len() > 0 {
		tagByte, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		op := Opcode(tagByte)
		in := Instr{Op: op}

		switch op {
		case Set:
			n, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, fmt.Errorf("set: reading count: %w", err)
			}
			in.Ints = make([]int64, n)
			for i := range in.Ints {
				v, err := readI64(r)
				if err != nil {
					return nil, fmt.Errorf("set: reading value %d: %w", i, err)
				}
				in.Ints[i] = v
			}
		case Move:
			v, err := readI64(r)
			if err != nil {
				return nil, fmt.Errorf("mov: %w", err)
			}
			in.N = v
		case Store, Load:
			n, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			in.N = int64(n)
		case SetFloat:
			var tmp [8]byte
			if _, err := io.ReadFull(r, tmp[:]); err != nil {
				return nil, fmt.Errorf("set-f: %w", err)
			}
			in.Float = math.Float64frombits(binary.LittleEndian.Uint64(tmp[:]))
		case Get:
			mode, err := r.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("get: reading mode: %w", err)
			}
			channel, err := readU32Reader(r)
			if err != nil {
				return nil, fmt.Errorf("get: reading channel: %w", err)
			}
			in.Input = Input{Mode: InputMode(mode), Channel: int(channel)}
		case Put:
			mode, err := r.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("put: reading mode: %w", err)
			}
			channel, err := readU32Reader(r)
			if err != nil {
				return nil, fmt.Errorf("put: reading channel: %w", err)
			}
			in.Output = Output{Mode: OutputMode(mode), Channel: int(channel)}
		case Comment:
			n, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, fmt.Errorf("comment: reading length: %w", err)
			}
			s := make([]byte, n)
			if _, err := io.ReadFull(r, s); err != nil {
				return nil, fmt.Errorf("comment: reading text: %w", err)
			}
			in.Comment = string(s)
		}

		code = append(code, in)
	}
	return code, nil
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeI64(buf *bytes.Buffer, v int64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	buf.Write(tmp[:])
}

func readI64(r *bytes.Reader) (int64, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(tmp[:])), nil
}

func readU32Reader(r *bytes.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(tmp[:]), nil
}
