package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dray-io/fimcondense/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

type fakeProducer struct {
	mu      sync.Mutex
	records []*kgo.Record
	err     error
	closed  bool
}

func (p *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	p.mu.Lock()
	defer p.mu.Unlock()
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		if p.err == nil {
			p.records = append(p.records, r)
		}
		results = append(results, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return results
}

func (p *fakeProducer) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func sampleRecord() FlushRecord {
	return FlushRecord{
		FlushID:   "0b7a3c5e-flush",
		Index:     "fim-*",
		Trigger:   TriggerSize,
		FileIDs:   []string{"/etc/passwd", "/var/log"},
		KeepPairs: []KeepPair{{ID: "r1", Index: "fim-2024.01.01"}},
		Deleted:   7,
		StartedAt: time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC),
	}
}

func TestKafkaSinkWrite(t *testing.T) {
	p := &fakeProducer{}
	sink := NewKafkaSinkWithProducer(p, "fimcondense-audit")

	rec := sampleRecord()
	require.NoError(t, sink.Write(context.Background(), rec))

	require.Len(t, p.records, 1)
	msg := p.records[0]
	assert.Equal(t, "fimcondense-audit", msg.Topic)
	assert.Equal(t, []byte("fim-*"), msg.Key)

	var decoded FlushRecord
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, rec.FlushID, decoded.FlushID)
	assert.Equal(t, rec.FileIDs, decoded.FileIDs)
	assert.Equal(t, rec.KeepPairs, decoded.KeepPairs)
	assert.Equal(t, int64(7), decoded.Deleted)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "0b7a3c5e-flush", headers["flush-id"])
	assert.Equal(t, "size", headers["trigger"])

	require.NoError(t, sink.Close())
	assert.True(t, p.closed)
}

func TestKafkaSinkProduceError(t *testing.T) {
	boom := errors.New("broker unavailable")
	sink := NewKafkaSinkWithProducer(&fakeProducer{err: boom}, "t")

	err := sink.Write(context.Background(), sampleRecord())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "0b7a3c5e-flush")
}

func TestNewKafkaSinkValidation(t *testing.T) {
	_, err := NewKafkaSink(context.Background(), KafkaConfig{Topic: "t"})
	assert.ErrorContains(t, err, "brokers are required")

	_, err = NewKafkaSink(context.Background(), KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.ErrorContains(t, err, "topic is required")
}

func TestKafkaCompression(t *testing.T) {
	tests := []struct {
		name codec.Name
		want kgo.CompressionCodec
	}{
		{codec.None, kgo.NoCompression()},
		{codec.Gzip, kgo.GzipCompression()},
		{codec.Snappy, kgo.SnappyCompression()},
		{codec.LZ4, kgo.Lz4Compression()},
		{codec.Zstd, kgo.ZstdCompression()},
	}
	for _, tt := range tests {
		t.Run(string(tt.name), func(t *testing.T) {
			assert.Equal(t, tt.want, kafkaCompression(tt.name))
		})
	}
}
