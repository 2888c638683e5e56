package discovery

import (
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/kartta/pkg/resource"
)

// BytesPerMegabyte converts provider "megabytes" to bytes for storage sizes.
const BytesPerMegabyte = 1_049_000

// DeriveUsedBytes combines a capacity and a percent-used reading. It reports
// false when either input is missing.
func DeriveUsedBytes(capacity, percent *float64) (float64, bool) {
	if capacity == nil || percent == nil {
		return 0, false
	}
	return *capacity * (*percent / 100), true
}

// MegabytesToBytes converts a megabyte figure with BytesPerMegabyte.
func MegabytesToBytes(mb float64) int64 {
	return int64(mb * BytesPerMegabyte)
}

// SupplementaryNumber reads a numeric value at path ("storage/Total") from
// r's supplementary configuration. Nil when absent or not a number.
func SupplementaryNumber(r *resource.Resource, path string) *float64 {
	v, ok := r.Supplementary().Path(path)
	if !ok {
		return nil
	}
	switch n := v.(type) {
	case float64:
		return &n
	case int64:
		f := float64(n)
		return &f
	case int:
		f := float64(n)
		return &f
	default:
		return nil
	}
}

// Derive runs fn and passes its value to set. Errors, panics and missing
// values leave the field unset.
func Derive(r *resource.Resource, field string, fn func() (int64, bool, error), set func(int64)) {
	defer func() {
		if v := recover(); v != nil {
			log.Debug().
				Interface("panic", v).
				Str("field", field).
				Str("identity", r.Identity()).
				Msg("derived field omitted")
		}
	}()

	n, ok, err := fn()
	if err != nil || !ok {
		log.Debug().
			Err(err).
			Str("field", field).
			Str("identity", r.Identity()).
			Msg("derived field omitted")
		return
	}
	set(n)
}
