package mirror

import (
	"net/url"
	"strconv"
	"time"
)

// DefaultTagFields is the stat allow-list attached to uploaded objects.
var DefaultTagFields = []string{
	"st_mode", "st_ino", "st_uid", "st_gid", "st_size", "st_atime", "st_mtime", "st_ctime",
}

// IsTagField reports whether name is a supported stat field.
func IsTagField(name string) bool {
	for _, f := range DefaultTagFields {
		if f == name {
			return true
		}
	}
	return false
}

// BuildTags URL-encodes the allow-listed stat fields. Unknown field names are
// skipped. Times are seconds since the epoch with a fractional part.
func BuildTags(st *FileStat, fields []string) string {
	values := url.Values{}
	for _, f := range fields {
		switch f {
		case "st_mode":
			values.Set(f, strconv.FormatUint(uint64(st.Mode), 10))
		case "st_ino":
			values.Set(f, strconv.FormatUint(st.Inode, 10))
		case "st_uid":
			values.Set(f, strconv.FormatUint(uint64(st.UID), 10))
		case "st_gid":
			values.Set(f, strconv.FormatUint(uint64(st.GID), 10))
		case "st_size":
			values.Set(f, strconv.FormatInt(st.Size, 10))
		case "st_atime":
			values.Set(f, epochSeconds(st.Atime))
		case "st_mtime":
			values.Set(f, epochSeconds(st.Mtime))
		case "st_ctime":
			values.Set(f, epochSeconds(st.Ctime))
		}
	}
	return values.Encode()
}

func epochSeconds(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', -1, 64)
}
