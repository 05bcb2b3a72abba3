package s3

import (
	"bufio"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	mockBucket   = "mock-bucket"
	metaPrefix   = "X-Amz-Meta-"
	listPageSize = 1000
)

// NewMockForTests returns a Store whose client talks to an in-process fake
// bucket instead of the network.
func NewMockForTests() *Store {
	s, _ := newFakeStore(listPageSize)
	return s
}

func newFakeStore(pageSize int) (*Store, *fakeBucket) {
	bucket := &fakeBucket{objects: make(map[string]storedObject), pageSize: pageSize, now: time.Now}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: handlerTransport{bucket}}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://fake.s3.local")
	})
	return &Store{client: client, bucket: mockBucket}, bucket
}

// handlerTransport serves requests from an http.Handler without a listener.
type handlerTransport struct{ h http.Handler }

func (t handlerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rec := httptest.NewRecorder()
	t.h.ServeHTTP(rec, req)
	return rec.Result(), nil
}

type storedObject struct {
	data        []byte
	contentType string
	meta        map[string]string
	etag        string
	modified    time.Time
}

// fakeBucket is a single path-style bucket covering the object calls Store makes.
type fakeBucket struct {
	mu       sync.Mutex
	objects  map[string]storedObject
	pageSize int
	now      func() time.Time
	listed   int
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if bucket != mockBucket {
		http.Error(w, "NoSuchBucket", http.StatusNotFound)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case key == "" && r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		b.list(w, r)
	case key == "":
		http.Error(w, "bucket operation not supported", http.StatusNotImplemented)
	case r.Method == http.MethodPut:
		b.put(w, r, key)
	case r.Method == http.MethodHead, r.Method == http.MethodGet:
		b.read(w, r, key)
	case r.Method == http.MethodDelete:
		delete(b.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not supported", http.StatusMethodNotAllowed)
	}
}

func (b *fakeBucket) put(w http.ResponseWriter, r *http.Request, key string) {
	data, err := readPayload(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	meta := make(map[string]string)
	for name, values := range r.Header {
		if strings.HasPrefix(name, metaPrefix) && len(values) > 0 {
			meta[strings.ToLower(strings.TrimPrefix(name, metaPrefix))] = values[0]
		}
	}
	sum := md5.Sum(data)
	obj := storedObject{
		data:        data,
		contentType: r.Header.Get("Content-Type"),
		meta:        meta,
		etag:        hex.EncodeToString(sum[:]),
		modified:    b.now().UTC().Truncate(time.Second),
	}
	b.objects[key] = obj
	w.Header().Set("ETag", strconv.Quote(obj.etag))
	w.WriteHeader(http.StatusOK)
}

func (b *fakeBucket) read(w http.ResponseWriter, r *http.Request, key string) {
	obj, ok := b.objects[key]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h := w.Header()
	h.Set("Content-Length", strconv.Itoa(len(obj.data)))
	h.Set("ETag", strconv.Quote(obj.etag))
	h.Set("Last-Modified", obj.modified.Format(http.TimeFormat))
	if obj.contentType != "" {
		h.Set("Content-Type", obj.contentType)
	}
	for k, v := range obj.meta {
		h.Set(metaPrefix+k, v)
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(obj.data)
	}
}

type listResult struct {
	XMLName               xml.Name      `xml:"ListBucketResult"`
	Name                  string        `xml:"Name"`
	Prefix                string        `xml:"Prefix"`
	KeyCount              int           `xml:"KeyCount"`
	IsTruncated           bool          `xml:"IsTruncated"`
	NextContinuationToken string        `xml:"NextContinuationToken,omitempty"`
	Contents              []listedEntry `xml:"Contents"`
}

type listedEntry struct {
	Key          string `xml:"Key"`
	Size         int64  `xml:"Size"`
	ETag         string `xml:"ETag"`
	LastModified string `xml:"LastModified"`
}

// list pages through keys in lexical order; the continuation token is the
// last key of the previous page.
func (b *fakeBucket) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	prefix, after := q.Get("prefix"), q.Get("continuation-token")
	keys := slices.Sorted(maps.Keys(b.objects))
	res := listResult{Name: mockBucket, Prefix: prefix}
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) || (after != "" && k <= after) {
			continue
		}
		if len(res.Contents) == b.pageSize {
			res.IsTruncated = true
			res.NextContinuationToken = res.Contents[len(res.Contents)-1].Key
			break
		}
		obj := b.objects[k]
		res.Contents = append(res.Contents, listedEntry{
			Key:          k,
			Size:         int64(len(obj.data)),
			ETag:         strconv.Quote(obj.etag),
			LastModified: obj.modified.Format(time.RFC3339),
		})
	}
	res.KeyCount = len(res.Contents)
	b.listed++
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, xml.Header)
	_ = xml.NewEncoder(w).Encode(res)
}

// readPayload returns the object bytes, unwrapping aws-chunked framing when the
// SDK streams the body with a trailing checksum.
func readPayload(r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	chunked := strings.Contains(r.Header.Get("Content-Encoding"), "aws-chunked") ||
		r.Header.Get("X-Amz-Decoded-Content-Length") != ""
	if !chunked {
		return raw, nil
	}
	return decodeAWSChunked(raw)
}

// decodeAWSChunked strips "<hex-size>[;ext]\r\n<data>\r\n" framing up to the
// zero-length chunk; trailers after it are ignored.
func decodeAWSChunked(raw []byte) ([]byte, error) {
	br := bufio.NewReader(bytes.NewReader(raw))
	var out bytes.Buffer
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("chunk header: %w", err)
		}
		sizeField, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		size, err := strconv.ParseInt(sizeField, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("chunk size %q: %w", sizeField, err)
		}
		if size == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, br, size); err != nil {
			return nil, fmt.Errorf("chunk body: %w", err)
		}
		if _, err := br.Discard(2); err != nil {
			return nil, fmt.Errorf("chunk terminator: %w", err)
		}
	}
}
