package zip

import (
	stdzip "archive/zip"
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"testing"
	"time"
)

func TestArchiveRoundTrip(t *testing.T) {
	assets := []Asset{
		{Filename: "01_portrait.png", MIME: "image/png", Data: []byte("fake png bytes")},
		{Filename: "02_portrait.jpg", MIME: "image/jpeg", Data: bytes.Repeat([]byte{0xff, 0xd8, 0x00}, 512)},
		{Filename: "notes/readme.txt", Data: []byte("")},
	}

	blob := ArchiveAssets(assets)
	reader, err := stdzip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		t.Fatalf("archive not readable: %v", err)
	}
	if len(reader.File) != len(assets) {
		t.Fatalf("entry count mismatch: got %d want %d", len(reader.File), len(assets))
	}

	for i, f := range reader.File {
		if f.Name != assets[i].Filename {
			t.Fatalf("entry %d name mismatch: got %q want %q", i, f.Name, assets[i].Filename)
		}
		if f.Method != stdzip.Store {
			t.Fatalf("entry %q not stored: method %d", f.Name, f.Method)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %q: %v", f.Name, err)
		}
		got, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %q: %v", f.Name, err)
		}
		if !bytes.Equal(got, assets[i].Data) {
			t.Fatalf("entry %q content mismatch", f.Name)
		}
		if f.CRC32 != crc32.ChecksumIEEE(assets[i].Data) {
			t.Fatalf("entry %q crc mismatch: got %08x", f.Name, f.CRC32)
		}
	}
}

func TestArchiveEmpty(t *testing.T) {
	blob := ArchiveAssets(nil)
	reader, err := stdzip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		t.Fatalf("empty archive not readable: %v", err)
	}
	if len(reader.File) != 0 {
		t.Fatalf("expected no entries, got %d", len(reader.File))
	}
}

func TestArchiveSkipsUnnamedAssets(t *testing.T) {
	blob := ArchiveAssets([]Asset{
		{Filename: "", Data: []byte("dropped")},
		{Filename: "kept.png", Data: []byte("kept")},
	})
	reader, err := stdzip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		t.Fatalf("archive not readable: %v", err)
	}
	if len(reader.File) != 1 || reader.File[0].Name != "kept.png" {
		t.Fatalf("unexpected entries: %+v", reader.File)
	}
}

func TestChecksumMatchesIEEE(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("a"),
		[]byte("123456789"), // classic check value 0xcbf43926
		bytes.Repeat([]byte{0x5a}, 4096),
	}
	for _, data := range cases {
		if got, want := Checksum(data), crc32.ChecksumIEEE(data); got != want {
			t.Fatalf("crc mismatch for %d bytes: got %08x want %08x", len(data), got, want)
		}
	}
	if Checksum([]byte("123456789")) != 0xcbf43926 {
		t.Fatalf("reference vector failed")
	}
}

func TestLocalHeaderLayout(t *testing.T) {
	data := []byte("payload")
	blob := archiveAt([]Asset{{Filename: "x.bin", Data: data}}, time.Date(2024, 6, 15, 10, 30, 45, 0, time.UTC))

	if sig := binary.LittleEndian.Uint32(blob[0:4]); sig != localHeaderSig {
		t.Fatalf("bad local header signature: %08x", sig)
	}
	if method := binary.LittleEndian.Uint16(blob[8:10]); method != methodStore {
		t.Fatalf("expected store method, got %d", method)
	}
	modTime := binary.LittleEndian.Uint16(blob[10:12])
	modDate := binary.LittleEndian.Uint16(blob[12:14])
	if modDate != uint16(2024-1980)<<9|6<<5|15 {
		t.Fatalf("bad dos date: %04x", modDate)
	}
	// seconds have 2-second resolution: 45 packs as 22
	if modTime != 10<<11|30<<5|22 {
		t.Fatalf("bad dos time: %04x", modTime)
	}
	if csize := binary.LittleEndian.Uint32(blob[18:22]); csize != uint32(len(data)) {
		t.Fatalf("compressed size %d, want %d", csize, len(data))
	}
	if usize := binary.LittleEndian.Uint32(blob[22:26]); usize != uint32(len(data)) {
		t.Fatalf("uncompressed size %d, want %d", usize, len(data))
	}
}
