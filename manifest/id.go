package manifest

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Object store prefixes the upstream provider writes to and the pipeline
// relocates processed data sets into. These must match the provider's layout
// exactly.
const (
	PrefixPendingManifests            = "Incoming"
	PrefixPendingSyntheticManifests   = "Synthetic/Incoming"
	PrefixCompletedManifests          = "Done"
	PrefixCompletedSyntheticManifests = "Synthetic/Done"
)

var manifestKeyRegex = regexp.MustCompile(`^(Incoming|Synthetic/Incoming)/(.*)/([0-9]+)_manifest\.xml$`)

// ID is the total-order identity of a data set: timestamp first, sequence id
// as tiebreak. TimestampText is kept verbatim because the provider's
// timestamps carry more precision than a round trip through time.Time
// formatting would preserve, and the text is part of object keys.
type ID struct {
	TimestampText string
	Timestamp     time.Time
	SequenceId    int
}

func NewID(timestampText string, sequenceId int) (ID, error) {
	ts, err := time.Parse(time.RFC3339Nano, timestampText)
	if err != nil {
		return ID{}, errors.Wrapf(err, "invalid manifest timestamp %q", timestampText)
	}
	return ID{
		TimestampText: timestampText,
		Timestamp:     ts,
		SequenceId:    sequenceId,
	}, nil
}

// ParseManifestKey extracts a manifest's identity and its pending prefix from
// an object store key. Keys that do not follow the naming convention return
// an error and are skipped by discovery.
func ParseManifestKey(key string) (ID, string, error) {
	m := manifestKeyRegex.FindStringSubmatch(key)
	if m == nil {
		return ID{}, "", errors.Errorf("key does not name a manifest: %s", key)
	}
	seq, err := strconv.Atoi(m[3])
	if err != nil {
		return ID{}, "", errors.Wrapf(err, "invalid sequence id in key %s", key)
	}
	id, err := NewID(m[2], seq)
	if err != nil {
		return ID{}, "", errors.Wrapf(err, "invalid timestamp in key %s", key)
	}
	return id, m[1], nil
}

// ManifestKey builds the object store key for this identity under the given
// pending or completed prefix.
func (id ID) ManifestKey(prefix string) string {
	return fmt.Sprintf("%s/%s/%d_manifest.xml", prefix, id.TimestampText, id.SequenceId)
}

// Compare orders identities by (timestamp, sequence id) ascending.
func (id ID) Compare(other ID) int {
	if id.Timestamp.Before(other.Timestamp) {
		return -1
	}
	if id.Timestamp.After(other.Timestamp) {
		return 1
	}
	if id.SequenceId < other.SequenceId {
		return -1
	}
	if id.SequenceId > other.SequenceId {
		return 1
	}
	return 0
}

func (id ID) Equals(other ID) bool {
	return id.TimestampText == other.TimestampText && id.SequenceId == other.SequenceId
}

func (id ID) String() string {
	return fmt.Sprintf("%s:%d", id.TimestampText, id.SequenceId)
}

// CompletedPrefix maps a pending prefix to the prefix processed objects are
// relocated under.
func CompletedPrefix(pendingPrefix string) string {
	if pendingPrefix == PrefixPendingSyntheticManifests {
		return PrefixCompletedSyntheticManifests
	}
	return PrefixCompletedManifests
}
