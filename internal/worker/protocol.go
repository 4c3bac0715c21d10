package worker

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/andresmejia3/tiler/internal/types"
)

// maxFrame bounds a single protocol frame.
const maxFrame = 64 << 20

// message is one frame sent from the worker back to the parent.
// Exactly one of Image, Result or Error is set.
type message struct {
	Image  *types.ImageStats `json:"image,omitempty"`
	Result *types.TaskResult `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
	Code   string            `json:"code,omitempty"`
}

// Error codes carried across the process boundary so callers can still use errors.Is.
var codes = map[string]error{
	"invalid_config":  types.ErrInvalidConfig,
	"schema_mismatch": types.ErrSchemaMismatch,
	"no_images":       types.ErrNoImages,
}

func errorCode(err error) string {
	for code, target := range codes {
		if errors.Is(err, target) {
			return code
		}
	}
	return ""
}

// remoteError is an error reported by a worker process.
type remoteError struct {
	msg    string
	target error
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.target }

func (m message) err() error {
	return &remoteError{msg: m.Error, target: codes[m.Code]}
}

// writeFrame sends v as [Length][JSON].
func writeFrame(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(data))); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// readFrame reads one [Length][JSON] frame into v.
// It returns io.EOF only when the stream ends cleanly between frames.
func readFrame(r io.Reader, v any) error {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(header)
	if n > maxFrame {
		return fmt.Errorf("frame of %d bytes exceeds limit", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	return json.Unmarshal(body, v)
}
