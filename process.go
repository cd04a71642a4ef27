package revisionable

import (
	"crypto/md5"
	"encoding/hex"

	"github.com/google/uuid"
)

// ProcessIDLength is the width of the process column.
const ProcessIDLength = 8

// NewProcessID returns a random 8 character token identifying the writing
// process. Call it once at start-up and pass it through Config.Process.
func NewProcessID() string {
	sum := md5.Sum([]byte(uuid.NewString()))
	return hex.EncodeToString(sum[:])[:ProcessIDLength]
}
