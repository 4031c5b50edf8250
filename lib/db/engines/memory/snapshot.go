package memory

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
)

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

const (
	magicNum        = "HKVSNAP\x00" // File format identifier
	snapshotVersion = 1             // Snapshot format version
)

// snapshotRow is a deep copy of a row taken while saving
type snapshotRow struct {
	key   string
	entry entry
}

// Save writes all tables and their live rows to w.
// Concurrent reading and writing is allowed during Save, the snapshot is fuzzy.
func (m *DB) Save(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	now := m.now().UnixNano()
	names := make([]string, 0)
	m.tables.Range(func(name string, _ *table) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)

	// Write file header and version
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(snapshotVersion)); err != nil {
		return err
	}

	// Write table count
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(names))); err != nil {
		return err
	}

	for _, name := range names {
		t, ok := m.tables.Load(name)
		if !ok {
			t = newTable() // dropped concurrently, write it empty
		}

		var rows []snapshotRow
		t.rows.Range(func(key string, e entry) bool {
			if e.expired(now) {
				return true
			}
			value := make([]byte, len(e.Value))
			copy(value, e.Value)
			e.Value = value
			rows = append(rows, snapshotRow{key: key, entry: e})
			return true
		})
		sort.Slice(rows, func(i, j int) bool { return rows[i].entry.Seq < rows[j].entry.Seq })

		if err := writeBytes(bw, []byte(name)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint64(len(rows))); err != nil {
			return err
		}
		for _, r := range rows {
			if err := writeBytes(bw, []byte(r.key)); err != nil {
				return err
			}
			header := [4]int64{r.entry.CreatedAt, r.entry.UpdatedAt, r.entry.ExpireAt, int64(r.entry.Seq)}
			if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
				return err
			}
			if err := writeBytes(bw, r.entry.Value); err != nil {
				return err
			}
		}
	}

	// Flush buffer to ensure all data is written
	return bw.Flush()
}

// Load replaces the content of the driver with the snapshot read from r.
// It must not be called concurrently with other operations.
func (m *DB) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != snapshotVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, snapshotVersion)
	}

	var tableCount uint32
	if err := binary.Read(br, binary.LittleEndian, &tableCount); err != nil {
		return err
	}

	type loadedRow struct {
		table string
		key   string
		entry entry
	}
	tables := make(map[string]*table, min(tableCount, 1024))
	var (
		expiring []loadedRow
		maxSeq   uint64
	)

	for i := uint32(0); i < tableCount; i++ {
		name, err := readBytes(br)
		if err != nil {
			return err
		}
		t := newTable()
		tables[string(name)] = t

		var rowCount uint64
		if err := binary.Read(br, binary.LittleEndian, &rowCount); err != nil {
			return err
		}
		for j := uint64(0); j < rowCount; j++ {
			key, err := readBytes(br)
			if err != nil {
				return err
			}
			var header [4]int64
			if err := binary.Read(br, binary.LittleEndian, &header); err != nil {
				return err
			}
			value, err := readBytes(br)
			if err != nil {
				return err
			}
			e := entry{
				Value:     value,
				CreatedAt: header[0],
				UpdatedAt: header[1],
				ExpireAt:  header[2],
				Seq:       uint64(header[3]),
			}
			if e.Seq > maxSeq {
				maxSeq = e.Seq
			}
			t.rows.Store(string(key), e)
			if e.ExpireAt != 0 {
				expiring = append(expiring, loadedRow{table: string(name), key: string(key), entry: e})
			}
		}
	}

	// swap in the loaded state
	m.tables.Clear()
	for name, t := range tables {
		m.tables.Store(name, t)
	}
	m.gcMu.Lock()
	m.expiry.Clear()
	for _, r := range expiring {
		m.expiry.AddItem(rowRef{table: r.table, key: r.key}, r.entry.ExpireAt)
	}
	m.gcMu.Unlock()
	if cur := m.seq.Load(); maxSeq > cur {
		m.seq.Store(maxSeq)
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	// the length comes from the file, the buffer only grows with data actually read
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, r, int64(n)); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read %d bytes: %w", n, err)
	}
	return buf.Bytes(), nil
}
