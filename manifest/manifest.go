package manifest

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// DataSetManifest is the parsed form of one manifest document. It is
// immutable once constructed: the identity never changes and entries carry no
// reference back to the manifest, so callers pass the manifest explicitly
// where an entry alone is not enough context.
type DataSetManifest struct {
	Id            ID
	SyntheticData bool
	Entries       []Entry
	EndState      *SyntheaEndState

	// PendingPrefix is the prefix the manifest was discovered under, carried
	// so data file and relocation keys can be derived.
	PendingPrefix string
}

// Entry is one data file named by a manifest.
type Entry struct {
	Name string
	Type FileType
}

type xmlManifest struct {
	XMLName       xml.Name         `xml:"dataSetManifest"`
	Timestamp     string           `xml:"timestamp,attr"`
	SequenceId    int              `xml:"sequenceId,attr"`
	SyntheticData bool             `xml:"syntheticData,attr"`
	Entries       []xmlEntry       `xml:"entry"`
	EndState      *SyntheaEndState `xml:"preValidationProperties"`
}

type xmlEntry struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
}

// Parse decodes a manifest document read from the object store. The
// pendingPrefix is the prefix the manifest key was listed under.
func Parse(r io.Reader, pendingPrefix string) (*DataSetManifest, error) {
	doc := &xmlManifest{}
	if err := xml.NewDecoder(r).Decode(doc); err != nil {
		return nil, errors.Wrap(err, "error decoding manifest document")
	}

	id, err := NewID(doc.Timestamp, doc.SequenceId)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		if e.Name == "" {
			return nil, errors.Errorf("manifest %s has an entry with no name", id)
		}
		t, err := ParseFileType(e.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "manifest %s entry %s", id, e.Name)
		}
		entries = append(entries, Entry{Name: e.Name, Type: t})
	}

	return &DataSetManifest{
		Id:            id,
		SyntheticData: doc.SyntheticData,
		Entries:       entries,
		EndState:      doc.EndState,
		PendingPrefix: pendingPrefix,
	}, nil
}

// ManifestKey is the object store key the manifest was discovered at.
func (m *DataSetManifest) ManifestKey() string {
	return m.Id.ManifestKey(m.PendingPrefix)
}

// CompletedManifestKey is where the manifest document is relocated once the
// data set reaches a terminal state.
func (m *DataSetManifest) CompletedManifestKey() string {
	return m.Id.ManifestKey(CompletedPrefix(m.PendingPrefix))
}

// EntryKey is the object store key of a data file: the manifest's own prefix
// and timestamp, then the entry name.
func (m *DataSetManifest) EntryKey(e Entry) string {
	return fmt.Sprintf("%s/%s/%s", m.PendingPrefix, m.Id.TimestampText, e.Name)
}

// CompletedEntryKey is where a data file is relocated alongside its manifest.
func (m *DataSetManifest) CompletedEntryKey(e Entry) string {
	return fmt.Sprintf("%s/%s/%s", CompletedPrefix(m.PendingPrefix), m.Id.TimestampText, e.Name)
}
