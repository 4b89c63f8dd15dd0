package cache

import (
	"fmt"
	"net/http"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// compressThreshold is the body size above which bodies are stored
// zstd-compressed. Smaller bodies are not worth the frame overhead.
const compressThreshold = 512

const (
	bodyPlain uint8 = 0
	bodyZstd  uint8 = 1
)

var (
	encMode     cbor.EncMode
	decMode     cbor.DecMode
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cache: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("cache: CBOR decoder initialization failed: " + err.Error())
	}

	// EncodeAll and DecodeAll are safe for concurrent use on shared
	// instances.
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("cache: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("cache: zstd decoder initialization failed: " + err.Error())
	}
}

// storedEntry is the on-disk form of an Entry.
type storedEntry struct {
	Key       string              `cbor:"1,keyasint"`
	Status    int                 `cbor:"2,keyasint"`
	Header    map[string][]string `cbor:"3,keyasint,omitempty"`
	Body      []byte              `cbor:"4,keyasint,omitempty"`
	Encoding  uint8               `cbor:"5,keyasint,omitempty"`
	Mode      int                 `cbor:"6,keyasint"`
	WrittenAt int64               `cbor:"7,keyasint"`
}

func encodeEntry(e Entry) ([]byte, error) {
	stored := storedEntry{
		Key:       e.Key,
		Status:    e.Response.Status,
		Header:    e.Response.Header,
		Body:      e.Response.Body,
		Mode:      int(e.Mode),
		WrittenAt: e.WrittenAt.UTC().UnixMilli(),
	}
	if len(stored.Body) >= compressThreshold {
		stored.Body = zstdEncoder.EncodeAll(e.Response.Body, nil)
		stored.Encoding = bodyZstd
	}
	data, err := encMode.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("cache: encode entry: %w", err)
	}
	return data, nil
}

func decodeEntry(data []byte) (Entry, error) {
	var stored storedEntry
	if err := decMode.Unmarshal(data, &stored); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}

	body := stored.Body
	switch stored.Encoding {
	case bodyPlain:
	case bodyZstd:
		decoded, err := zstdDecoder.DecodeAll(stored.Body, nil)
		if err != nil {
			return Entry{}, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
		}
		body = decoded
	default:
		return Entry{}, fmt.Errorf("%w: unknown body encoding %d", ErrCorruptEntry, stored.Encoding)
	}

	return Entry{
		Key: stored.Key,
		Response: Response{
			Status: stored.Status,
			Header: http.Header(stored.Header),
			Body:   body,
		},
		Mode:      CaptureMode(stored.Mode),
		WrittenAt: time.UnixMilli(stored.WrittenAt).UTC(),
	}, nil
}
