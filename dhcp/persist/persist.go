// Package persist implements the lease-file collaborator: a flat sequence
// of fixed-size records, load and atomic store. The record format resolves
// the Open Question in spec §9/§6 by fixing an explicit 8-byte
// little-endian seconds-since-epoch start_time instead of a platform
// time_t, documented here rather than guessed. Encoding uses
// encoding/binary directly, the teacher's own wire-format idiom throughout
// dhcp/codec and dhcp/protocol/network.go; see DESIGN.md for why no
// third-party binary-framing library replaces it.
package persist

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"dhcpd/dhcp/allocator"
	"dhcpd/dhcp/frame"
)

func unixSeconds(secs uint64) time.Time {
	return time.Unix(int64(secs), 0)
}

// recordSize is 8 bytes start_time (LE uint64 unix seconds) + 8 bytes
// hardware address (high 2 bytes zero, low 6 the MAC) + 4 bytes IPv4.
const recordSize = 8 + 8 + 4

// Load reads every lease record from path. Records with start_time == 0
// are skipped, per spec §6. A missing file is not an error: a
// freshly-configured interface has no lease history yet.
func Load(path string) ([]allocator.Lease, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("persist: open %s: %w", path, err)
	}
	defer f.Close()

	var leases []allocator.Lease
	r := bufio.NewReader(f)
	buf := make([]byte, recordSize)
	for {
		_, err := io.ReadFull(r, buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return leases, fmt.Errorf("persist: read %s: %w", path, err)
		}

		startSecs := binary.LittleEndian.Uint64(buf[0:8])
		if startSecs == 0 {
			continue
		}
		hw := frame.HardwareAddr(binary.LittleEndian.Uint64(buf[8:16]) &^ (0xFFFF << 48))
		ip := frame.IPv4(binary.LittleEndian.Uint32(buf[16:20]))
		leases = append(leases, allocator.Lease{
			StartTime: unixSeconds(startSecs),
			HW:        hw,
			IP:        ip,
		})
	}
	return leases, nil
}

// Store rewrites path atomically (write to a temp file in the same
// directory, then rename over the target) with the given leases, per
// spec §6's "rewritten atomically on every ACK".
func Store(path string, leases []allocator.Lease) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".leases-*.tmp")
	if err != nil {
		return fmt.Errorf("persist: create temp in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	w := bufio.NewWriter(tmp)
	buf := make([]byte, recordSize)
	for _, l := range leases {
		if !l.Valid() {
			continue
		}
		binary.LittleEndian.PutUint64(buf[0:8], uint64(l.StartTime.Unix()))
		binary.LittleEndian.PutUint64(buf[8:16], uint64(l.HW))
		binary.LittleEndian.PutUint32(buf[16:20], uint32(l.IP))
		if _, err := w.Write(buf); err != nil {
			tmp.Close()
			return fmt.Errorf("persist: write %s: %w", tmpName, err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("persist: flush %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("persist: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("persist: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("persist: rename %s -> %s: %w", tmpName, path, err)
	}
	return nil
}
