// Package kfn reads and writes the KFN song container used by Karafun.
//
// A container starts with the "KFNB" signature, followed by a list of
// tagged headers, a subfile directory and the subfile data region.
// Subfile payloads are opaque bytes; only the envelope is interpreted.
package kfn

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var signature = []byte("KFNB")

// Header IDs with special meaning during unlocking.
const (
	HeaderKey    = "FLID" // AES-128 key for encrypted subfiles
	HeaderRights = "RGHT" // publishing rights flags
)

// Header flag bytes on the wire.
const (
	FlagUint = 1 // 4-byte little-endian integer
	FlagData = 2 // length-prefixed byte string
)

var (
	ErrSignature  = errors.New("kfn: unexpected file signature")
	ErrTruncated  = errors.New("kfn: unexpected end of data")
	ErrHeaderFlag = errors.New("kfn: unexpected header flag")
)

type SubfileType uint32

const (
	Song SubfileType = iota + 1
	Audio
	Image
	Font
	Video
	Milkdrop
	CDG
)

func (t SubfileType) String() string {
	switch t {
	case Song:
		return "song"
	case Audio:
		return "audio"
	case Image:
		return "image"
	case Font:
		return "font"
	case Video:
		return "video"
	case Milkdrop:
		return "milkdrop"
	case CDG:
		return "cdg"
	}
	return fmt.Sprintf("unknown(%d)", uint32(t))
}

// Header is a single tagged header entry. Either Uint or Data is
// meaningful, depending on Flag.
type Header struct {
	ID   string
	Flag byte
	Uint uint32
	Data []byte
}

func (h *Header) String() string {
	if h.Flag == FlagUint {
		return fmt.Sprintf("%s = %d", h.ID, h.Uint)
	}
	return fmt.Sprintf("%s = %x", h.ID, h.Data)
}

type Subfile struct {
	Name []byte
	Type SubfileType

	// Length is the plaintext length. Data holds the stored bytes,
	// which are longer than Length while the subfile is encrypted
	// (AES pads to the block size).
	Length    uint32
	Data      []byte
	Encrypted bool
}

// File is a decoded container. Headers keep the order they had on the
// wire; the writer reproduces that order.
type File struct {
	Headers  []Header
	Subfiles []*Subfile
}

// Header returns the first header with the given ID, or nil.
func (f *File) Header(id string) *Header {
	for i := range f.Headers {
		if f.Headers[i].ID == id {
			return &f.Headers[i]
		}
	}
	return nil
}

type decoder struct {
	data []byte
	off  int
}

func (d *decoder) bytes(n int) ([]byte, error) {
	if n < 0 || d.off+n > len(d.data) {
		return nil, ErrTruncated
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) word() (uint32, error) {
	b, err := d.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Decode parses a complete container.
func Decode(data []byte) (*File, error) {
	d := &decoder{data: data}

	magic, err := d.bytes(4)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(magic, signature) {
		return nil, ErrSignature
	}

	f := &File{}

	// Headers run until the ENDH terminator.
	for {
		id, err := d.bytes(4)
		if err != nil {
			return nil, fmt.Errorf("reading header id: %w", err)
		}
		flag, err := d.bytes(1)
		if err != nil {
			return nil, fmt.Errorf("reading header flag: %w", err)
		}

		h := Header{ID: string(id), Flag: flag[0]}
		switch h.Flag {
		case FlagUint:
			if h.Uint, err = d.word(); err != nil {
				return nil, fmt.Errorf("reading header %s: %w", h.ID, err)
			}
		case FlagData:
			length, err := d.word()
			if err != nil {
				return nil, fmt.Errorf("reading header %s: %w", h.ID, err)
			}
			if h.Data, err = d.bytes(int(length)); err != nil {
				return nil, fmt.Errorf("reading header %s: %w", h.ID, err)
			}
		default:
			return nil, fmt.Errorf("%w: header %s flag %d", ErrHeaderFlag, h.ID, h.Flag)
		}

		if h.ID == "ENDH" {
			break
		}
		f.Headers = append(f.Headers, h)
	}

	count, err := d.word()
	if err != nil {
		return nil, fmt.Errorf("reading subfile count: %w", err)
	}
	// Each directory entry takes at least 24 bytes, so a count the
	// remaining data cannot hold is a lie; checking before the
	// allocation keeps a crafted count from exhausting memory.
	if count > uint32((len(d.data)-d.off)/24) {
		return nil, fmt.Errorf("subfile count %d: %w", count, ErrTruncated)
	}

	// Directory first, then the data region it points into.
	type entry struct {
		name                                     []byte
		ftype, length, offset, stored, encrypted uint32
	}
	entries := make([]entry, 0, count)
	for i := uint32(0); i < count; i++ {
		var e entry
		nameLen, err := d.word()
		if err != nil {
			return nil, fmt.Errorf("reading subfile directory: %w", err)
		}
		if e.name, err = d.bytes(int(nameLen)); err != nil {
			return nil, fmt.Errorf("reading subfile directory: %w", err)
		}
		for _, p := range []*uint32{&e.ftype, &e.length, &e.offset, &e.stored, &e.encrypted} {
			if *p, err = d.word(); err != nil {
				return nil, fmt.Errorf("reading subfile directory: %w", err)
			}
		}
		entries = append(entries, e)
	}

	dataStart := d.off
	for _, e := range entries {
		if e.ftype < uint32(Song) || e.ftype > uint32(CDG) {
			return nil, fmt.Errorf("kfn: subfile %q: unknown type %d", e.name, e.ftype)
		}
		d.off = dataStart + int(e.offset)
		payload, err := d.bytes(int(e.stored))
		if err != nil {
			return nil, fmt.Errorf("reading subfile %q: %w", e.name, err)
		}
		f.Subfiles = append(f.Subfiles, &Subfile{
			Name:      e.name,
			Type:      SubfileType(e.ftype),
			Length:    e.length,
			Data:      payload,
			Encrypted: e.encrypted != 0,
		})
	}

	return f, nil
}

// Encode serializes the container. Subfile offsets are recomputed from
// the current data lengths, so callers may resize subfiles freely.
func (f *File) Encode() ([]byte, error) {
	var buf []byte
	word := func(v uint32) {
		buf = binary.LittleEndian.AppendUint32(buf, v)
	}

	buf = append(buf, signature...)

	for i := range f.Headers {
		h := &f.Headers[i]
		if len(h.ID) != 4 {
			return nil, fmt.Errorf("kfn: header id %q must be 4 bytes", h.ID)
		}
		buf = append(buf, h.ID...)
		switch h.Flag {
		case FlagUint:
			buf = append(buf, FlagUint)
			word(h.Uint)
		case FlagData:
			buf = append(buf, FlagData)
			word(uint32(len(h.Data)))
			buf = append(buf, h.Data...)
		default:
			return nil, fmt.Errorf("%w: header %s flag %d", ErrHeaderFlag, h.ID, h.Flag)
		}
	}
	buf = append(buf, "ENDH"...)
	buf = append(buf, FlagUint, 0xff, 0xff, 0xff, 0xff)

	word(uint32(len(f.Subfiles)))
	offset := uint32(0)
	for _, sf := range f.Subfiles {
		word(uint32(len(sf.Name)))
		buf = append(buf, sf.Name...)
		word(uint32(sf.Type))
		word(sf.Length)
		word(offset)
		word(uint32(len(sf.Data)))
		if sf.Encrypted {
			word(1)
		} else {
			word(0)
		}
		offset += uint32(len(sf.Data))
	}

	for _, sf := range f.Subfiles {
		buf = append(buf, sf.Data...)
	}

	return buf, nil
}
