// Package encoding offers (de)serialization APIs for verification
// reports. The binary form is CBOR prefixed with a format version; the
// JSON form feeds external tooling.
package encoding

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/tenet-verify/tenet/engine"
)

// Version is the current report serialization format.
const Version uint64 = 1

var errInvalidVersion = errors.New("report was serialized with an incompatible format version")

// Write serializes the report into a file.
func Write(path string, report *engine.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return Serialize(f, report)
}

// Read reads and deserializes a report file.
func Read(path string) (*engine.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Deserialize(f)
}

// Serialize encodes the report into the writer, format version first.
func Serialize(writer io.Writer, report *engine.Report) error {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return err
	}
	encoder := em.NewEncoder(writer)

	if err := encoder.Encode(Version); err != nil {
		return err
	}
	return encoder.Encode(report)
}

// Deserialize reads a report from the reader, checking the format
// version.
func Deserialize(reader io.Reader) (*engine.Report, error) {
	decoder := cbor.NewDecoder(reader)

	var v uint64
	if err := decoder.Decode(&v); err != nil {
		return nil, err
	}
	if v != Version {
		return nil, errInvalidVersion
	}

	report := new(engine.Report)
	if err := decoder.Decode(report); err != nil {
		return nil, err
	}
	return report, nil
}

// PeekVersion reads only the format version of a report file.
func PeekVersion(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var v uint64
	if err := cbor.NewDecoder(f).Decode(&v); err != nil {
		return 0, err
	}
	return v, nil
}

// WriteJSON encodes the report as indented JSON.
func WriteJSON(writer io.Writer, report *engine.Report) error {
	enc := json.NewEncoder(writer)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// ReadJSON decodes a JSON report.
func ReadJSON(reader io.Reader) (*engine.Report, error) {
	report := new(engine.Report)
	if err := json.NewDecoder(reader).Decode(report); err != nil {
		return nil, err
	}
	return report, nil
}
