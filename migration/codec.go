package migration

import (
	"encoding/binary"
	"time"

	"github.com/ledgerwatch/recordlayer/recorderr"
)

func encodeVersion(v Version) []byte {
	buf := make([]byte, 24)
	binary.BigEndian.PutUint64(buf[0:8], uint64(v.Major))
	binary.BigEndian.PutUint64(buf[8:16], uint64(v.Minor))
	binary.BigEndian.PutUint64(buf[16:24], uint64(v.Patch))
	return buf
}

func decodeVersion(data []byte) (Version, error) {
	if len(data) != 24 {
		return Version{}, recorderr.New(recorderr.KindInvalidSerializedData, "migration: malformed version record (%d bytes)", len(data))
	}
	return Version{
		Major: int(binary.BigEndian.Uint64(data[0:8])),
		Minor: int(binary.BigEndian.Uint64(data[8:16])),
		Patch: int(binary.BigEndian.Uint64(data[16:24])),
	}, nil
}

// encodeAppliedMarker records when a migration was applied, per
// spec.md §4.L step 4's "set the applied marker with a timestamp".
func encodeAppliedMarker(at time.Time) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(at.UnixNano()))
	return buf
}

func decodeAppliedMarker(data []byte) (time.Time, error) {
	if len(data) != 8 {
		return time.Time{}, recorderr.New(recorderr.KindInvalidSerializedData, "migration: malformed applied marker (%d bytes)", len(data))
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(data))), nil
}
