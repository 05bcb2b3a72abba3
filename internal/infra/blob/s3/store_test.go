package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"scoretrack/internal/blob/core"
)

func TestMockStorePrefixAndOverwrite(t *testing.T) {
	ctx := context.Background()
	s := NewMockForTests()
	s.prefix = "scoretrack/"

	if _, err := s.Put(ctx, "run-9/diffs.json", bytes.NewReader([]byte(`[]`)), core.PutOptions{ContentType: "application/json"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	list, err := s.List(ctx, "run-9/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "run-9/diffs.json" {
		t.Fatalf("list should strip the store prefix, got %+v", list)
	}
	if _, err := s.Put(ctx, "run-9/diffs.json", bytes.NewReader([]byte(`[1]`)), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	info, err := s.Put(ctx, "run-9/diffs.json", bytes.NewReader([]byte(`[1]`)), core.PutOptions{Overwrite: true})
	if err != nil || info.Size != 3 {
		t.Fatalf("overwrite = %+v, %v", info, err)
	}
	if ok, err := s.Delete(ctx, "run-9/absent.json"); err != nil || ok {
		t.Fatalf("delete of absent key = %v, %v", ok, err)
	}
}

func TestInvalidKeys(t *testing.T) {
	s := NewMockForTests()
	for _, key := range []string{"", "  ", "/abs"} {
		if _, err := s.Head(context.Background(), key); !errors.Is(err, core.ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
}

func TestMockStoreMetadataAndPagedList(t *testing.T) {
	ctx := context.Background()
	s, bucket := newFakeStore(2)
	keys := []string{"run-1/a.csv", "run-1/b.csv", "run-1/c.csv", "run-1/d.csv", "run-1/e.csv", "run-2/a.csv"}
	for _, k := range keys {
		opts := core.PutOptions{ContentType: "text/csv", Metadata: map[string]string{"run": "r1"}}
		if _, err := s.Put(ctx, k, strings.NewReader("id,score\n7,12\n"), opts); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	info, rc, err := s.Get(ctx, "run-1/c.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "id,score\n7,12\n" || info.ContentType != "text/csv" || info.Metadata["run"] != "r1" {
		t.Fatalf("get = %+v %q", info, body)
	}
	if info.ETag == "" || info.Size != int64(len(body)) {
		t.Fatalf("missing etag or size: %+v", info)
	}

	bucket.listed = 0
	list, err := s.List(ctx, "run-1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 5 || list[0].Key != "run-1/a.csv" || list[4].Key != "run-1/e.csv" {
		t.Fatalf("paged list = %+v", list)
	}
	if bucket.listed != 3 {
		t.Fatalf("expected 3 list pages, got %d", bucket.listed)
	}
}

func TestDecodeAWSChunked(t *testing.T) {
	raw := "5;chunk-signature=abc\r\nhello\r\n6\r\n world\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n"
	got, err := decodeAWSChunked([]byte(raw))
	if err != nil || string(got) != "hello world" {
		t.Fatalf("decode = %q, %v", got, err)
	}
	if _, err := decodeAWSChunked([]byte("zz\r\nhello\r\n")); err == nil {
		t.Fatalf("expected error for bad chunk size")
	}
}
