package blob

import (
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
)

func TestNewS3StoreRequiresBucket(t *testing.T) {
	if _, err := NewS3Store(S3Config{}); err == nil {
		t.Fatalf("expected error without bucket")
	}
}

func TestNewS3StoreBaseURL(t *testing.T) {
	store, err := NewS3Store(S3Config{Bucket: "shots", Endpoint: "http://minio:9000/", AccessKey: "k", SecretKey: "s"})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if store.baseURL != "http://minio:9000/shots" {
		t.Fatalf("unexpected base url %q", store.baseURL)
	}
	if got := store.key("/screenshots/1.jpg"); got != "screenshots/1.jpg" {
		t.Fatalf("unexpected key %q", got)
	}

	custom, err := NewS3Store(S3Config{Bucket: "shots", BaseURL: "https://cdn.example.com/"})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if custom.baseURL != "https://cdn.example.com" {
		t.Fatalf("unexpected base url %q", custom.baseURL)
	}
}

func TestIsMissing(t *testing.T) {
	head := awserr.NewRequestFailure(awserr.New("NotFound", "not found", nil), http.StatusNotFound, "req")
	if !isMissing(head) {
		t.Fatalf("404 head should be missing")
	}
	get := awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	if !isMissing(get) {
		t.Fatalf("NoSuchKey should be missing")
	}
	denied := awserr.NewRequestFailure(awserr.New("AccessDenied", "denied", nil), http.StatusForbidden, "req")
	if isMissing(denied) {
		t.Fatalf("access denied is not a missing key")
	}
	if isMissing(errors.New("boom")) {
		t.Fatalf("plain errors are not missing keys")
	}
}
