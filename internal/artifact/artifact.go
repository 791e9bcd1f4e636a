// Package artifact holds captured export payloads and decides whether a
// payload is a delimited table worth persisting.
package artifact

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// Channel identifies the delivery mechanism a payload arrived through.
type Channel string

const (
	FileDownload    Channel = "file_download"
	PopupDocument   Channel = "popup_document"
	NetworkResponse Channel = "network_response"
	InPageObject    Channel = "in_page_object"
)

// Channels lists every delivery channel in arming order.
var Channels = []Channel{FileDownload, PopupDocument, NetworkResponse, InPageObject}

// Artifact is a payload that passed validation. It is never mutated after
// Accept returns it.
type Artifact struct {
	data    []byte
	Channel Channel
	Source  string
}

// Accept validates data and wraps a private copy of it in an Artifact.
func Accept(data []byte, ch Channel, source string) (*Artifact, error) {
	if err := Validate(data); err != nil {
		return nil, fmt.Errorf("%s payload from %q: %w", ch, source, err)
	}
	return &Artifact{data: bytes.Clone(data), Channel: ch, Source: source}, nil
}

// Bytes returns a copy of the payload exactly as captured.
func (a *Artifact) Bytes() []byte {
	return bytes.Clone(a.data)
}

// Size is the payload length in bytes.
func (a *Artifact) Size() int64 {
	return int64(len(a.data))
}

// Write persists the artifact at path. The bytes land in a temporary file in
// the same directory first and are renamed into place, so a failed write
// never leaves a partial output behind.
func Write(path string, a *Artifact) (err error) {
	if a == nil {
		return fmt.Errorf("write %s: nil artifact", path)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.part")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(a.data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
