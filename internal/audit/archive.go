package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dray-io/fimcondense/internal/codec"
	"github.com/dray-io/fimcondense/internal/objectstore"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

// Archive formats.
const (
	FormatJSONL   = "jsonl"
	FormatParquet = "parquet"
)

// ArchiveConfig configures the object store sink.
type ArchiveConfig struct {
	Prefix string
	Format string
	Codec  codec.Name
}

// ArchiveSink writes one object per flush record.
//
// Objects are laid out as
//
//	<prefix>/index=<index>/date=YYYY/MM/DD/<flushId>.<ext>
//
// JSONL objects hold the record as a single line compressed with Codec.
// Parquet objects hold one row per file id, compressed by the Parquet writer.
type ArchiveSink struct {
	store  objectstore.Store
	prefix string
	format string
	codec  codec.Name
}

// FlushRow is the Parquet row layout of an archived flush.
type FlushRow struct {
	FlushID          string `parquet:"flush_id"`
	Index            string `parquet:"index"`
	Trigger          string `parquet:"trigger"`
	FileID           string `parquet:"file_id"`
	KeepPairs        int32  `parquet:"keep_pairs"`
	Deleted          int64  `parquet:"deleted"`
	VersionConflicts int64  `parquet:"version_conflicts"`
	Failures         int32  `parquet:"failures"`
	Error            string `parquet:"error,optional"`
	StartedAt        int64  `parquet:"started_at,timestamp(millisecond)"`
	DurationMs       int64  `parquet:"duration_ms"`
}

// NewArchiveSink creates a sink writing to store.
func NewArchiveSink(store objectstore.Store, cfg ArchiveConfig) (*ArchiveSink, error) {
	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = FormatJSONL
	}
	if format != FormatJSONL && format != FormatParquet {
		return nil, fmt.Errorf("audit: unknown archive format %q", cfg.Format)
	}
	c := cfg.Codec
	if c == "" {
		c = codec.None
	}
	if format == FormatParquet && c == codec.LZ4 {
		// Parquet only supports the raw LZ4 block format.
		return nil, fmt.Errorf("audit: codec %q is not supported for parquet archives", c)
	}
	return &ArchiveSink{
		store:  store,
		prefix: strings.Trim(cfg.Prefix, "/"),
		format: format,
		codec:  c,
	}, nil
}

// Key returns the object key rec is archived under.
func (a *ArchiveSink) Key(rec FlushRecord) string {
	var ext string
	if a.format == FormatParquet {
		ext = ".parquet"
	} else {
		ext = ".jsonl" + a.codec.Extension()
	}
	key := fmt.Sprintf("index=%s/date=%s/%s%s",
		rec.Index, rec.StartedAt.UTC().Format("2006/01/02"), rec.FlushID, ext)
	if a.prefix == "" {
		return key
	}
	return a.prefix + "/" + key
}

// Write stores rec as one object under Key(rec).
func (a *ArchiveSink) Write(ctx context.Context, rec FlushRecord) error {
	var (
		data        []byte
		contentType string
		encoding    string
		err         error
	)
	if a.format == FormatParquet {
		data, err = a.encodeParquet(rec)
		contentType = "application/vnd.apache.parquet"
	} else {
		data, err = a.encodeJSONL(rec)
		contentType = "application/x-ndjson"
		encoding = a.codec.ContentEncoding()
	}
	if err != nil {
		return fmt.Errorf("audit: encode flush %s: %w", rec.FlushID, err)
	}

	err = a.store.PutWithOptions(ctx, a.Key(rec), bytes.NewReader(data), int64(len(data)), contentType,
		objectstore.PutOptions{
			ContentEncoding: encoding,
			Metadata:        map[string]string{"flush-id": rec.FlushID, "index": rec.Index},
		})
	if err != nil {
		return fmt.Errorf("audit: archive flush %s: %w", rec.FlushID, err)
	}
	return nil
}

// Close closes the underlying object store.
func (a *ArchiveSink) Close() error {
	return a.store.Close()
}

func (a *ArchiveSink) encodeJSONL(rec FlushRecord) ([]byte, error) {
	line, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return codec.Encode(a.codec, append(line, '\n'))
}

func (a *ArchiveSink) encodeParquet(rec FlushRecord) ([]byte, error) {
	rows := FlushRows(rec)

	var buf bytes.Buffer
	w := parquet.NewGenericWriter[FlushRow](&buf, parquet.Compression(parquetCodec(a.codec)))
	n, err := w.Write(rows)
	if err != nil {
		return nil, fmt.Errorf("parquet: write rows: %w", err)
	}
	if n != len(rows) {
		return nil, fmt.Errorf("parquet: wrote %d of %d rows", n, len(rows))
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("parquet: close: %w", err)
	}
	return buf.Bytes(), nil
}

// FlushRows expands rec into one row per file id. A record without file ids
// yields a single row with an empty FileID.
func FlushRows(rec FlushRecord) []FlushRow {
	base := FlushRow{
		FlushID:          rec.FlushID,
		Index:            rec.Index,
		Trigger:          string(rec.Trigger),
		KeepPairs:        int32(len(rec.KeepPairs)),
		Deleted:          rec.Deleted,
		VersionConflicts: rec.VersionConflicts,
		Failures:         int32(rec.Failures),
		Error:            rec.Error,
		StartedAt:        rec.StartedAt.UnixMilli(),
		DurationMs:       rec.DurationMs,
	}
	if len(rec.FileIDs) == 0 {
		return []FlushRow{base}
	}
	rows := make([]FlushRow, len(rec.FileIDs))
	for i, id := range rec.FileIDs {
		rows[i] = base
		rows[i].FileID = id
	}
	return rows
}

func parquetCodec(n codec.Name) compress.Codec {
	switch n {
	case codec.Gzip:
		return &parquet.Gzip
	case codec.Snappy:
		return &parquet.Snappy
	case codec.Zstd:
		return &parquet.Zstd
	default:
		return &parquet.Uncompressed
	}
}

var _ Sink = (*ArchiveSink)(nil)
