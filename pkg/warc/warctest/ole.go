package warctest

import (
	"bytes"
	"encoding/binary"
	"sort"
	"unicode/utf16"
)

const (
	oleSectorSize = 512
	oleStreamSize = 4096 // at the mini stream cutoff, so regular sectors hold it
	oleEndOfChain = 0xFFFFFFFE
	oleFreeSect   = 0xFFFFFFFF
	oleFATSect    = 0xFFFFFFFD
	oleNoStream   = 0xFFFFFFFF
)

// summaryIDs are the SummaryInformation property ids OLE accepts.
var summaryIDs = map[string]uint32{
	"Title":    2,
	"Subject":  3,
	"Author":   4,
	"Keywords": 5,
	"Comments": 6,
}

// summaryFMTID is {F29F85E0-4FF9-1068-AB91-08002B27B3D9} in on-disk order.
var summaryFMTID = []byte{
	0xE0, 0x85, 0x9F, 0xF2, 0xF9, 0x4F, 0x68, 0x10,
	0xAB, 0x91, 0x08, 0x00, 0x2B, 0x27, 0xB3, 0xD9,
}

// OLE returns a version 3 compound file holding a single
// "\x05SummaryInformation" stream with the given string properties. Keys
// other than Title, Subject, Author, Keywords and Comments are ignored.
func OLE(props map[string]string) []byte {
	le := binary.LittleEndian

	// Sectors: 0 FAT, 1 directory, 2.. the property set stream.
	streamSectors := oleStreamSize / oleSectorSize
	file := make([]byte, oleSectorSize*(3+streamSectors))

	h := file[:oleSectorSize]
	copy(h, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1})
	le.PutUint16(h[24:], 0x003E)
	le.PutUint16(h[26:], 0x0003)
	le.PutUint16(h[28:], 0xFFFE)
	le.PutUint16(h[30:], 0x0009)
	le.PutUint16(h[32:], 0x0006)
	le.PutUint32(h[44:], 1) // FAT sectors
	le.PutUint32(h[48:], 1) // first directory sector
	le.PutUint32(h[56:], oleStreamSize)
	le.PutUint32(h[60:], oleEndOfChain)
	le.PutUint32(h[68:], oleEndOfChain)
	le.PutUint32(h[76:], 0)
	for i := 80; i < oleSectorSize; i += 4 {
		le.PutUint32(h[i:], oleFreeSect)
	}

	fat := sector(file, 0)
	for i := 0; i < oleSectorSize; i += 4 {
		le.PutUint32(fat[i:], oleFreeSect)
	}
	le.PutUint32(fat[0:], oleFATSect)
	le.PutUint32(fat[4:], oleEndOfChain)
	for s := 2; s < 2+streamSectors; s++ {
		next := uint32(s + 1)
		if s == 1+streamSectors {
			next = oleEndOfChain
		}
		le.PutUint32(fat[s*4:], next)
	}

	dir := sector(file, 1)
	for i := 0; i < 4; i++ {
		e := dir[i*128:]
		le.PutUint32(e[68:], oleNoStream)
		le.PutUint32(e[72:], oleNoStream)
		le.PutUint32(e[76:], oleNoStream)
	}
	dirEntry(dir[0:], "Root Entry", 5, 1, oleEndOfChain, 0)
	dirEntry(dir[128:], "\x05SummaryInformation", 2, oleNoStream, 2, oleStreamSize)

	copy(file[oleSectorSize*3:], summaryStream(props))
	return file
}

func sector(file []byte, n int) []byte {
	start := (n + 1) * oleSectorSize
	return file[start : start+oleSectorSize]
}

func dirEntry(e []byte, name string, objectType byte, child, start, size uint32) {
	le := binary.LittleEndian
	units := utf16.Encode([]rune(name))
	for i, u := range units {
		le.PutUint16(e[i*2:], u)
	}
	le.PutUint16(e[64:], uint16((len(units)+1)*2))
	e[66] = objectType
	e[67] = 1 // black
	le.PutUint32(e[76:], child)
	le.PutUint32(e[116:], start)
	le.PutUint32(e[120:], size)
}

// summaryStream encodes a property set stream with a code page property
// and one VT_LPSTR per known key.
func summaryStream(props map[string]string) []byte {
	le := binary.LittleEndian
	type entry struct {
		id    uint32
		value []byte
	}

	codePage := make([]byte, 8)
	le.PutUint16(codePage[0:], 0x0002) // VT_I2
	le.PutUint16(codePage[4:], 1252)
	entries := []entry{{id: 1, value: codePage}}

	var keys []string
	for k := range props {
		if _, ok := summaryIDs[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return summaryIDs[keys[i]] < summaryIDs[keys[j]] })
	for _, k := range keys {
		s := append([]byte(props[k]), 0)
		v := make([]byte, 8+len(s)+(4-len(s)%4)%4)
		le.PutUint16(v[0:], 0x001E) // VT_LPSTR
		le.PutUint32(v[4:], uint32(len(s)))
		copy(v[8:], s)
		entries = append(entries, entry{id: summaryIDs[k], value: v})
	}

	// Property set: size, count, (id, offset) pairs, then values.
	offset := 8 + 8*len(entries)
	var set bytes.Buffer
	table := make([]byte, offset)
	var values bytes.Buffer
	for i, e := range entries {
		le.PutUint32(table[8+i*8:], e.id)
		le.PutUint32(table[12+i*8:], uint32(offset+values.Len()))
		values.Write(e.value)
	}
	le.PutUint32(table[0:], uint32(offset+values.Len()))
	le.PutUint32(table[4:], uint32(len(entries)))
	set.Write(table)
	set.Write(values.Bytes())

	var out bytes.Buffer
	head := make([]byte, 28)
	le.PutUint16(head[0:], 0xFFFE)
	le.PutUint32(head[24:], 1) // one property set
	out.Write(head)
	out.Write(summaryFMTID)
	var off [4]byte
	le.PutUint32(off[:], 48)
	out.Write(off[:])
	out.Write(set.Bytes())
	return out.Bytes()
}
