package badger

import (
	"encoding/binary"
	"time"

	"github.com/JakeFAU/rescue-radar/internal/animal"
)

// Key prefixes for different record types.
const (
	animalPrefix       = "animal:"
	syncRunPrefix      = "syncrun:"
	syncRunStartPrefix = "syncrund:"
)

func animalKey(id animal.ID) []byte {
	return []byte(animalPrefix + id.Provider + ":" + id.NativeID)
}

func syncRunKey(id string) []byte {
	return []byte(syncRunPrefix + id)
}

// syncRunStartKey is prefix, big-endian start micros, then the run id, so
// lexicographic order is start order.
func syncRunStartKey(started time.Time, id string) []byte {
	buf := make([]byte, len(syncRunStartPrefix)+8+len(id))
	n := copy(buf, syncRunStartPrefix)
	binary.BigEndian.PutUint64(buf[n:], uint64(started.UnixMicro()))
	copy(buf[n+8:], id)
	return buf
}

// prefixEnd returns the smallest key greater than every key with prefix p.
func prefixEnd(p string) []byte {
	return append([]byte(p), 0xFF)
}
