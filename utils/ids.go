package utils

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const (
	// UUIDGeneratorType selects random (v4) uuids.
	UUIDGeneratorType = "uuid"

	// ULIDGeneratorType selects time sortable ulids.
	ULIDGeneratorType = "ulid"
)

var (
	entropyLock sync.Mutex
	entropy     = ulid.Monotonic(rand.Reader, 0)
)

// UUIDGenerator returns a new random uuid as a string.
func UUIDGenerator() string {
	return uuid.New().String()
}

// ULIDGenerator returns a time-sortable ULID encoded as a 26-character string.
// Ids created within the same millisecond are still strictly increasing.
func ULIDGenerator() string {
	entropyLock.Lock()
	defer entropyLock.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// GeneratorByName resolves an id generator from its configured name. Empty defaults to uuid.
func GeneratorByName(name string) (func() string, error) {

	switch name {
	case "", UUIDGeneratorType:
		return UUIDGenerator, nil
	case ULIDGeneratorType:
		return ULIDGenerator, nil
	default:
		return nil, fmt.Errorf("id generator %q is not supported", name)
	}
}
