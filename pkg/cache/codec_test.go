package cache

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCompressRoundTrip(t *testing.T) {
	src := []byte(strings.Repeat(`["RU000A0JX0J2","TQCB",100.5,null],`, 200))

	packed, err := compress(src)
	if err != nil {
		t.Fatalf("compress() error = %v", err)
	}
	if len(packed) >= len(src) {
		t.Errorf("compressed size %d not smaller than raw %d", len(packed), len(src))
	}

	out, err := decompress(packed)
	if err != nil {
		t.Fatalf("decompress() error = %v", err)
	}
	if !bytes.Equal(out, src) {
		t.Error("round trip changed the payload")
	}
}

func TestDecompress_Garbage(t *testing.T) {
	if _, err := decompress([]byte("not zstd")); err == nil {
		t.Error("expected error for non-zstd input")
	}
}

func TestEncodeDecodeEntry(t *testing.T) {
	in := &Entry{
		Data:       []byte(`{"marketdata":{"columns":["SECID","YIELD"],"data":[["RU000A0JX0J2",11.42]]}}`),
		Expires:    time.Now().Add(time.Minute).Truncate(time.Second),
		StatusCode: 200,
	}

	packed, rawSize, err := encodeEntry(in)
	if err != nil {
		t.Fatalf("encodeEntry() error = %v", err)
	}
	if rawSize <= len(in.Data) {
		t.Errorf("rawSize = %d, want larger than the body alone", rawSize)
	}

	out, err := decodeEntry(packed)
	if err != nil {
		t.Fatalf("decodeEntry() error = %v", err)
	}
	if !bytes.Equal(out.Data, in.Data) || !out.Expires.Equal(in.Expires) || out.StatusCode != 200 {
		t.Errorf("decodeEntry() = %+v, want %+v", out, in)
	}
}

func TestDecodeEntry_Invalid(t *testing.T) {
	notJSON, err := compress([]byte("not json"))
	if err != nil {
		t.Fatal(err)
	}

	for name, payload := range map[string][]byte{
		"not zstd": []byte("garbage"),
		"not json": notJSON,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := decodeEntry(payload); !errors.Is(err, ErrInvalidEntry) {
				t.Errorf("decodeEntry() error = %v, want ErrInvalidEntry", err)
			}
		})
	}
}
