package s3

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/jcognard-actinvision/askdb/internal/storage"
)

type fakeClient struct {
	lastGetBucket string
	lastGetKey    string
	lastListKey   string
	listResult    []storage.ObjectInfo
	getErr        error
}

func (f *fakeClient) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	f.lastGetBucket = bucket
	f.lastGetKey = key
	if f.getErr != nil {
		return nil, f.getErr
	}
	return io.NopCloser(strings.NewReader("parquet-bytes")), nil
}

func (f *fakeClient) Stat(_ context.Context, _, key string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{Key: key, Size: 13}, nil
}

func (f *fakeClient) List(_ context.Context, _, prefix string) ([]storage.ObjectInfo, error) {
	f.lastListKey = prefix
	return f.listResult, nil
}

func TestGetUsesPrefixAndNormalizedKey(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("bucket-a", "askdb/prod", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	reader, err := store.Get(context.Background(), "/tables/users.parquet")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	_ = reader.Close()
	if fake.lastGetBucket != "bucket-a" {
		t.Fatalf("bucket = %q", fake.lastGetBucket)
	}
	if fake.lastGetKey != "askdb/prod/tables/users.parquet" {
		t.Fatalf("key = %q", fake.lastGetKey)
	}
}

func TestGetRejectsPathTraversal(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if _, err := store.Get(context.Background(), "../secrets.txt"); err == nil {
		t.Fatal("expected path traversal validation error")
	}
}

func TestGetMapsNotFound(t *testing.T) {
	fake := &fakeClient{getErr: storage.ErrObjectNotFound}
	store, err := NewWithClient("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if _, err := store.Get(context.Background(), "missing.parquet"); err != storage.ErrObjectNotFound {
		t.Fatalf("error = %v, want ErrObjectNotFound", err)
	}
}

func TestListStripsStorePrefixFromKeys(t *testing.T) {
	fake := &fakeClient{listResult: []storage.ObjectInfo{
		{Key: "askdb/prod/tables/users.parquet", Size: 100},
		{Key: "askdb/prod/tables/orders.parquet", Size: 200},
	}}
	store, err := NewWithClient("bucket-a", "askdb/prod", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	infos, err := store.List(context.Background(), "tables")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if fake.lastListKey != "askdb/prod/tables" {
		t.Fatalf("list prefix = %q", fake.lastListKey)
	}
	if len(infos) != 2 {
		t.Fatalf("object count = %d", len(infos))
	}
	if infos[0].Key != "tables/users.parquet" {
		t.Fatalf("infos[0].Key = %q", infos[0].Key)
	}
}
