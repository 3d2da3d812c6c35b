package backup

import (
	"bytes"
	"encoding/xml"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/sftp"

	"github.com/yourusername/mc-server-panel/internal/config"
)

func TestLocalDestinationUploadDownloadDelete(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "backups")
	ld := NewLocalDestination(baseDir)

	content := []byte("backup-data")
	if err := ld.Upload("test.tar.gz", bytes.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	if !ld.Exists("test.tar.gz") {
		t.Fatalf("expected backup file to exist")
	}

	var buf bytes.Buffer
	if err := ld.Download("test.tar.gz", &buf); err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), content) {
		t.Fatalf("downloaded content mismatch")
	}

	files, err := ld.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}

	if err := ld.Delete("test.tar.gz"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if ld.Exists("test.tar.gz") {
		t.Fatalf("expected backup file to be removed")
	}
}

func TestLocalDestinationRejectsSizeMismatchAndTraversal(t *testing.T) {
	ld := NewLocalDestination(t.TempDir())

	if err := ld.Upload("short.tar", strings.NewReader("abc"), 10); err == nil {
		t.Fatalf("expected size mismatch error")
	}
	if files, _ := ld.List(); len(files) != 0 {
		t.Fatalf("partial upload must not be listed, got %v", files)
	}
	if err := ld.Upload("../escape.tar", strings.NewReader("abc"), 3); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
}

func TestNewDestinationInvalidType(t *testing.T) {
	_, err := NewDestination(config.DestinationConfig{Type: "invalid"})
	if err == nil {
		t.Fatalf("expected error for invalid destination type")
	}
}

func newInMemorySFTP(t *testing.T) *sftp.Client {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	srv := sftp.NewRequestServer(serverConn, sftp.InMemHandler())
	go srv.Serve()

	client, err := sftp.NewClientPipe(clientConn, clientConn)
	if err != nil {
		t.Fatalf("sftp client failed: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
		srv.Close()
	})
	return client
}

func TestSFTPDestinationUploadDownloadDelete(t *testing.T) {
	dest, err := newSFTPDestination(newInMemorySFTP(t), "/backups/mc")
	if err != nil {
		t.Fatalf("destination failed: %v", err)
	}

	content := []byte("world-archive")
	if err := dest.Upload("world.tar.gz", bytes.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	files, err := dest.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(files) != 1 || files[0].Filename != "world.tar.gz" || files[0].SizeBytes != int64(len(content)) {
		t.Fatalf("unexpected listing %+v", files)
	}

	var buf bytes.Buffer
	if err := dest.Download("world.tar.gz", &buf); err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), content) {
		t.Fatalf("downloaded content mismatch")
	}

	if err := dest.Delete("world.tar.gz"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if files, _ := dest.List(); len(files) != 0 {
		t.Fatalf("expected empty listing, got %+v", files)
	}
}

// fakeS3 implements the object calls used by S3Destination with path-style URLs
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

type listResult struct {
	XMLName  xml.Name     `xml:"ListBucketResult"`
	Contents []listObject `xml:"Contents"`
	KeyCount int          `xml:"KeyCount"`
}

type listObject struct {
	Key          string `xml:"Key"`
	Size         int    `xml:"Size"`
	LastModified string `xml:"LastModified"`
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// /bucket/key...
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	switch {
	case r.Method == http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[key] = data
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && key == "":
		prefix := r.URL.Query().Get("prefix")
		result := listResult{}
		for k, v := range f.objects {
			if strings.HasPrefix(k, prefix) {
				result.Contents = append(result.Contents, listObject{
					Key:          k,
					Size:         len(v),
					LastModified: time.Now().UTC().Format(time.RFC3339),
				})
			}
		}
		result.KeyCount = len(result.Contents)
		w.Header().Set("Content-Type", "application/xml")
		xml.NewEncoder(w).Encode(result)
	case r.Method == http.MethodGet:
		data, ok := f.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(data)
	case r.Method == http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3DestinationAgainstCompatibleEndpoint(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	dest, err := NewS3Destination(config.DestinationConfig{
		Type:        config.DestinationS3,
		Path:        "mc/backups",
		S3Bucket:    "panel",
		S3Region:    "us-east-1",
		S3AccessKey: "access",
		S3SecretKey: "secret",
		S3Endpoint:  srv.URL,
	})
	if err != nil {
		t.Fatalf("destination failed: %v", err)
	}

	content := []byte("world-archive")
	if err := dest.Upload("world.tar.gz", bytes.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if _, ok := fake.objects["mc/backups/world.tar.gz"]; !ok {
		t.Fatalf("expected object under prefix, have %v", fake.objects)
	}

	files, err := dest.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(files) != 1 || files[0].Filename != "world.tar.gz" {
		t.Fatalf("unexpected listing %+v", files)
	}

	var buf bytes.Buffer
	if err := dest.Download("world.tar.gz", &buf); err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), content) {
		t.Fatalf("downloaded content mismatch")
	}

	if err := dest.Delete("world.tar.gz"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if len(fake.objects) != 0 {
		t.Fatalf("expected object removed")
	}
}
