// Package zip assembles store-only ZIP archives without archive/zip. The
// bundles produced here hold already-compressed image bytes, so entries are
// stored verbatim and the writer stays free of any compression dependency.
package zip

import (
	"bytes"
	"encoding/binary"
	"time"
)

// Asset is one named payload to include in an archive.
type Asset struct {
	Filename string
	MIME     string
	Data     []byte
}

const (
	localHeaderSig  = 0x04034b50
	centralDirSig   = 0x02014b50
	endOfCentralSig = 0x06054b50
	zipVersion      = 20 // 2.0, minimum for plain stored entries
	methodStore     = 0
	dosEpochYear    = 1980
)

var crcTable = makeCRCTable()

// ArchiveAssets packs the provided assets into a single ZIP buffer. Entries
// are written in input order; every multi-byte field is little-endian.
func ArchiveAssets(assets []Asset) []byte {
	return archiveAt(assets, time.Now())
}

type entryMeta struct {
	name   string
	crc    uint32
	size   uint32
	offset uint32
}

func archiveAt(assets []Asset, now time.Time) []byte {
	buf := &bytes.Buffer{}
	modTime, modDate := dosTime(now)

	entries := make([]entryMeta, 0, len(assets))
	for _, asset := range assets {
		if asset.Filename == "" {
			continue
		}
		name := []byte(asset.Filename)
		meta := entryMeta{
			name:   asset.Filename,
			crc:    Checksum(asset.Data),
			size:   uint32(len(asset.Data)),
			offset: uint32(buf.Len()),
		}

		writeUint32(buf, localHeaderSig)
		writeUint16(buf, zipVersion) // version needed to extract
		writeUint16(buf, 0)          // general purpose flags
		writeUint16(buf, methodStore)
		writeUint16(buf, modTime)
		writeUint16(buf, modDate)
		writeUint32(buf, meta.crc)
		writeUint32(buf, meta.size) // compressed == uncompressed when stored
		writeUint32(buf, meta.size)
		writeUint16(buf, uint16(len(name)))
		writeUint16(buf, 0) // extra field length
		buf.Write(name)
		buf.Write(asset.Data)

		entries = append(entries, meta)
	}

	centralStart := uint32(buf.Len())
	for _, meta := range entries {
		name := []byte(meta.name)
		writeUint32(buf, centralDirSig)
		writeUint16(buf, zipVersion) // version made by
		writeUint16(buf, zipVersion) // version needed to extract
		writeUint16(buf, 0)          // general purpose flags
		writeUint16(buf, methodStore)
		writeUint16(buf, modTime)
		writeUint16(buf, modDate)
		writeUint32(buf, meta.crc)
		writeUint32(buf, meta.size)
		writeUint32(buf, meta.size)
		writeUint16(buf, uint16(len(name)))
		writeUint16(buf, 0) // extra field length
		writeUint16(buf, 0) // comment length
		writeUint16(buf, 0) // disk number start
		writeUint16(buf, 0) // internal attributes
		writeUint32(buf, 0) // external attributes
		writeUint32(buf, meta.offset)
		buf.Write(name)
	}
	centralSize := uint32(buf.Len()) - centralStart

	writeUint32(buf, endOfCentralSig)
	writeUint16(buf, 0) // this disk
	writeUint16(buf, 0) // disk holding the central directory
	writeUint16(buf, uint16(len(entries)))
	writeUint16(buf, uint16(len(entries)))
	writeUint32(buf, centralSize)
	writeUint32(buf, centralStart)
	writeUint16(buf, 0) // comment length

	return buf.Bytes()
}

// Checksum computes the IEEE CRC-32 of data with the package's table-driven
// implementation.
func Checksum(data []byte) uint32 {
	crc := ^uint32(0)
	for _, b := range data {
		crc = crcTable[byte(crc)^b] ^ (crc >> 8)
	}
	return ^crc
}

func makeCRCTable() [256]uint32 {
	// Reflected form of the standard IEEE 802.3 polynomial.
	const poly = 0xedb88320
	var table [256]uint32
	for i := range table {
		crc := uint32(i)
		for k := 0; k < 8; k++ {
			if crc&1 == 1 {
				crc = (crc >> 1) ^ poly
			} else {
				crc >>= 1
			}
		}
		table[i] = crc
	}
	return table
}

// dosTime packs a wall-clock time into the two 16-bit MS-DOS words used by
// the ZIP format: years offset from 1980, seconds at 2-second resolution.
func dosTime(t time.Time) (timeWord, dateWord uint16) {
	year := t.Year()
	if year < dosEpochYear {
		year = dosEpochYear
	}
	dateWord = uint16(year-dosEpochYear)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
	timeWord = uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
	return timeWord, dateWord
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
