package llm

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// Image references an image attachment, either a local file or an
// in-memory buffer. Data wins when both are set.
type Image struct {
	Path string
	Data []byte
}

// ImageFromPath references a local image file. The file is read when the
// request is sent, not here.
func ImageFromPath(path string) Image {
	return Image{Path: path}
}

// ImageFromBytes references an in-memory image.
func ImageFromBytes(data []byte) Image {
	return Image{Data: data}
}

// Bytes resolves the reference to raw image bytes.
func (i Image) Bytes() ([]byte, error) {
	if len(i.Data) > 0 {
		return i.Data, nil
	}
	if i.Path == "" {
		return nil, InvalidInputError{Reason: "empty image reference"}
	}

	data, err := os.ReadFile(i.Path)
	if err != nil {
		return nil, InvalidInputError{Reason: fmt.Sprintf("could not read image %q", i.Path), Err: err}
	}
	if len(data) == 0 {
		return nil, InvalidInputError{Reason: fmt.Sprintf("image %q is empty", i.Path)}
	}

	return data, nil
}

// Digest returns the hex-encoded SHA-256 of the resolved image bytes.
func (i Image) Digest() (string, error) {
	data, err := i.Bytes()
	if err != nil {
		return "", err
	}

	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:]), nil
}

// MarshalJSON encodes the image bytes as base64, the form Ollama uses on the
// wire. A path-only reference is read first and fails if it cannot be.
func (i Image) MarshalJSON() ([]byte, error) {
	data, err := i.Bytes()
	if err != nil {
		return nil, err
	}
	return json.Marshal(base64.StdEncoding.EncodeToString(data))
}

// UnmarshalJSON decodes a base64 string into Data.
func (i *Image) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return InvalidInputError{Reason: "image is not valid base64", Err: err}
	}

	i.Path = ""
	i.Data = data
	return nil
}
