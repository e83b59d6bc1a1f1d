package composer

import (
	"encoding/json"
	"strconv"
	"time"
)

// placeholderFloor keeps placeholder values far above any realistic
// server-assigned id so they never look like one when rendered.
const placeholderFloor int64 = 1_000_000_000_000

// ID identifies a part or question either by a placeholder assigned locally
// or by the id the server confirmed. Create-vs-update decisions look at the
// tag, never at the numeric value.
//
// The zero ID is an exam that has not been saved yet.
type ID struct {
	value     int64
	persisted bool
}

// LocalID wraps a placeholder value.
func LocalID(v int64) ID { return ID{value: v} }

// PersistedID wraps a server-assigned id.
func PersistedID(v int64) ID { return ID{value: v, persisted: true} }

// ServerID returns the confirmed server id, if any.
func (id ID) ServerID() (int64, bool) {
	if !id.persisted {
		return 0, false
	}
	return id.value, true
}

// IsPersisted reports whether the server has confirmed this entity.
func (id ID) IsPersisted() bool { return id.persisted }

// Key is a stable list key for rendering, unique within one session.
func (id ID) Key() int64 { return id.value }

func (id ID) String() string {
	if id.persisted {
		return strconv.FormatInt(id.value, 10)
	}
	if id.value == 0 {
		return "new"
	}
	return "local-" + strconv.FormatInt(id.value, 10)
}

// MarshalJSON renders persisted ids as numbers and placeholders as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.persisted {
		return []byte(strconv.FormatInt(id.value, 10)), nil
	}
	if id.value == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(id.String())
}

// idSource hands out strictly increasing timestamp-derived placeholders.
type idSource struct {
	now  func() time.Time
	last int64
}

func (s *idSource) next() ID {
	n := placeholderFloor + s.now().UnixMilli()
	if n <= s.last {
		n = s.last + 1
	}
	s.last = n
	return LocalID(n)
}
