package codec

import (
	"testing"
)

type benchRecord struct {
	Op   string `json:"op"`
	Key  string `json:"key"`
	Size int64  `json:"size,omitempty"`
}

type benchHeader struct {
	Magic      string `json:"magic"`
	Version    int    `json:"version"`
	AppVersion int    `json:"appVersion"`
	ValueCount int    `json:"valueCount"`
	Codec      string `json:"codec"`
}

var (
	sampleRecord = benchRecord{
		Op:   "CLEAN",
		Key:  "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		Size: 48213,
	}
	sampleHeader = benchHeader{
		Magic:      "imgcache.disklru",
		Version:    1,
		AppVersion: 3,
		ValueCount: 1,
		Codec:      "go-json",
	}
)

func TestCodecs_Compatible(t *testing.T) {
	for _, name := range []string{"json", "go-json"} {
		c, ok := ByName(name)
		if !ok {
			t.Fatalf("codec %q not found", name)
		}
		if c.Name() != name {
			t.Fatalf("codec name = %q, want %q", c.Name(), name)
		}

		var got benchRecord
		if err := (JSON{}).Unmarshal(MustMarshal(c, sampleRecord), &got); err != nil {
			t.Fatal(err)
		}
		if got != sampleRecord {
			t.Fatalf("%s: got %+v, want %+v", name, got, sampleRecord)
		}
	}

	if _, ok := ByName("msgpack"); ok {
		t.Fatal("unknown codec resolved")
	}
}

func TestGoJSON_Append(t *testing.T) {
	out, err := GoJSON{}.Append([]byte("x"), sampleHeader)
	if err != nil {
		t.Fatal(err)
	}
	if string(out[:2]) != "x{" {
		t.Fatalf("unexpected prefix %q", out[:2])
	}
}

func benchmarkCodecMarshal(b *testing.B, c Codec, v any) {
	b.Helper()
	b.ReportAllocs()

	warm, err := c.Marshal(v)
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(warm)))

	var sink []byte
	b.ResetTimer()
	for b.Loop() {
		out, err := c.Marshal(v)
		if err != nil {
			b.Fatal(err)
		}
		sink = out
	}
	_ = sink
}

func benchmarkCodecUnmarshal[T any](b *testing.B, c Codec, data []byte, dst *T) {
	b.Helper()
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))

	var v T
	b.ResetTimer()
	for b.Loop() {
		if err := c.Unmarshal(data, &v); err != nil {
			b.Fatal(err)
		}
	}
	if dst != nil {
		*dst = v
	}
}

func BenchmarkCodec_Marshal_Record(b *testing.B) {
	b.Run("stdlib", func(b *testing.B) { benchmarkCodecMarshal(b, JSON{}, sampleRecord) })
	b.Run("go-json", func(b *testing.B) { benchmarkCodecMarshal(b, GoJSON{}, sampleRecord) })
}

func BenchmarkCodec_Unmarshal_Record(b *testing.B) {
	data := MustMarshal(JSON{}, sampleRecord)

	b.Run("stdlib", func(b *testing.B) {
		var sink benchRecord
		benchmarkCodecUnmarshal(b, JSON{}, data, &sink)
	})
	b.Run("go-json", func(b *testing.B) {
		var sink benchRecord
		benchmarkCodecUnmarshal(b, GoJSON{}, data, &sink)
	})
}

func BenchmarkCodec_Marshal_Header(b *testing.B) {
	b.Run("stdlib", func(b *testing.B) { benchmarkCodecMarshal(b, JSON{}, sampleHeader) })
	b.Run("go-json", func(b *testing.B) { benchmarkCodecMarshal(b, GoJSON{}, sampleHeader) })
}
