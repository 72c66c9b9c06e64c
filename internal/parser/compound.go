package parser

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

// compound file binary format (the container legacy .xls files are stored
// in). There is no library for this anywhere in reach, so this is a
// narrow, direct-enough reader: it resolves one named top-level stream
// ("Workbook" or "Book") via the regular FAT chain. Streams smaller than
// the mini-stream cutoff (stored in the compound file's mini-FAT instead
// of its FAT) are not supported; real workbook streams are always larger
// than the 4096-byte cutoff, so this does not bite in practice.

const (
	cfbSectorFree        = 0xFFFFFFFF
	cfbSectorEndOfChain  = 0xFFFFFFFE
	cfbSectorFAT         = 0xFFFFFFFD
	cfbSectorDIFAT       = 0xFFFFFFFC
	cfbHeaderSize        = 512
	cfbDirEntrySize      = 128
	cfbObjectTypeStream  = 2
	cfbObjectTypeRootDir = 5
)

type cfbReader struct {
	data       []byte
	sectorSize int
	fat        []uint32
}

func newCFBReader(data []byte) (*cfbReader, error) {
	if len(data) < cfbHeaderSize {
		return nil, fmt.Errorf("file too small to be a compound document")
	}
	sig := data[0:8]
	if !bytes.Equal(sig, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}) {
		return nil, fmt.Errorf("not a compound file (bad signature)")
	}

	sectorShift := binary.LittleEndian.Uint16(data[30:32])
	sectorSize := 1 << sectorShift

	numFATSectors := binary.LittleEndian.Uint32(data[44:48])
	firstDIFATSector := binary.LittleEndian.Uint32(data[68:72])
	numDIFATSectors := binary.LittleEndian.Uint32(data[72:76])

	r := &cfbReader{data: data, sectorSize: sectorSize}

	difat := make([]uint32, 0, 109+int(numDIFATSectors)*(sectorSize/4-1))
	for i := 0; i < 109; i++ {
		off := 76 + i*4
		difat = append(difat, binary.LittleEndian.Uint32(data[off:off+4]))
	}

	sector := firstDIFATSector
	for i := uint32(0); i < numDIFATSectors && sector != cfbSectorEndOfChain; i++ {
		buf, err := r.readSector(sector)
		if err != nil {
			return nil, err
		}
		entries := sectorSize/4 - 1
		for j := 0; j < entries; j++ {
			difat = append(difat, binary.LittleEndian.Uint32(buf[j*4:j*4+4]))
		}
		sector = binary.LittleEndian.Uint32(buf[entries*4 : entries*4+4])
	}

	fat := make([]uint32, 0, int(numFATSectors)*(sectorSize/4))
	for i := uint32(0); i < numFATSectors; i++ {
		if int(i) >= len(difat) {
			break
		}
		secID := difat[i]
		if secID == cfbSectorFree {
			continue
		}
		buf, err := r.readSector(secID)
		if err != nil {
			return nil, err
		}
		for off := 0; off+4 <= len(buf); off += 4 {
			fat = append(fat, binary.LittleEndian.Uint32(buf[off:off+4]))
		}
	}
	r.fat = fat

	return r, nil
}

func (r *cfbReader) readSector(id uint32) ([]byte, error) {
	start := cfbHeaderSize + int(id)*r.sectorSize
	end := start + r.sectorSize
	if start < 0 || end > len(r.data) {
		return nil, fmt.Errorf("sector %d out of range", id)
	}
	return r.data[start:end], nil
}

// readChain follows the FAT chain starting at startSector, returning the
// first size bytes of concatenated sector data.
func (r *cfbReader) readChain(startSector uint32, size int) ([]byte, error) {
	out := make([]byte, 0, size)
	sector := startSector
	for sector != cfbSectorEndOfChain && len(out) < size {
		buf, err := r.readSector(sector)
		if err != nil {
			return nil, err
		}
		out = append(out, buf...)
		if int(sector) >= len(r.fat) {
			return nil, fmt.Errorf("sector chain runs past FAT bounds")
		}
		sector = r.fat[sector]
	}
	if len(out) > size {
		out = out[:size]
	}
	return out, nil
}

type cfbDirEntry struct {
	Name        string
	Type        byte
	StartSector uint32
	Size        int
}

func (r *cfbReader) directoryEntries() ([]cfbDirEntry, error) {
	firstDirSector := binary.LittleEndian.Uint32(r.data[48:52])

	var all []byte
	sector := firstDirSector
	for sector != cfbSectorEndOfChain {
		buf, err := r.readSector(sector)
		if err != nil {
			return nil, err
		}
		all = append(all, buf...)
		if int(sector) >= len(r.fat) {
			break
		}
		sector = r.fat[sector]
	}

	var entries []cfbDirEntry
	for off := 0; off+cfbDirEntrySize <= len(all); off += cfbDirEntrySize {
		e := all[off : off+cfbDirEntrySize]
		nameLen := int(binary.LittleEndian.Uint16(e[64:66]))
		objType := e[66]
		if objType != cfbObjectTypeStream && objType != cfbObjectTypeRootDir {
			continue
		}
		if nameLen < 2 || nameLen > 64 {
			continue
		}
		codeUnits := make([]uint16, 0, nameLen/2-1)
		for i := 0; i+2 <= nameLen-2; i += 2 {
			codeUnits = append(codeUnits, binary.LittleEndian.Uint16(e[i:i+2]))
		}
		name := string(utf16.Decode(codeUnits))

		startSector := binary.LittleEndian.Uint32(e[116:120])
		size := int(binary.LittleEndian.Uint32(e[124:128]))

		entries = append(entries, cfbDirEntry{Name: name, Type: objType, StartSector: startSector, Size: size})
	}
	return entries, nil
}

// findStream returns the bytes of a named top-level stream.
func (r *cfbReader) findStream(names ...string) ([]byte, error) {
	entries, err := r.directoryEntries()
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	for _, entry := range entries {
		if entry.Type != cfbObjectTypeStream {
			continue
		}
		for _, want := range names {
			if entry.Name == want {
				if entry.Size < 4096 {
					return nil, fmt.Errorf("stream %q uses the mini-FAT, which is not supported", entry.Name)
				}
				return r.readChain(entry.StartSector, entry.Size)
			}
		}
	}
	return nil, fmt.Errorf("no stream named any of %v", names)
}
