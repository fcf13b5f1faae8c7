package artifact

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

type apiError struct{ code string }

func (e *apiError) Error() string                 { return e.code }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.code }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string][]byte)} }

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &apiError{code: "NoSuchKey"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[*in.Key]; !ok {
		return nil, &apiError{code: "NotFound"}
	}
	return &s3.HeadObjectOutput{}, nil
}

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	local, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return map[string]Store{
		"local": local,
		"s3":    NewS3(newFakeS3(), "bucket", "autoppa"),
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := s.Exists(ctx, "run/0001/top.v")
			if err != nil || ok {
				t.Fatalf("Exists(missing) = %t, %v", ok, err)
			}
			if _, err := s.Get(ctx, "run/0001/top.v"); !errors.Is(err, fs.ErrNotExist) {
				t.Fatalf("Get(missing) err = %v, want fs.ErrNotExist", err)
			}
			if err := s.Put(ctx, "run/0001/top.v", []byte("module top; endmodule")); err != nil {
				t.Fatal(err)
			}
			got, err := s.Get(ctx, "run/0001/top.v")
			if err != nil || string(got) != "module top; endmodule" {
				t.Errorf("Get = %q, %v", got, err)
			}
			if ok, _ := s.Exists(ctx, "run/0001/top.v"); !ok {
				t.Error("Exists after Put = false")
			}
		})
	}
}

func TestS3Store_Prefix(t *testing.T) {
	fake := newFakeS3()
	s := NewS3(fake, "bucket", "runs")
	if err := s.Put(context.Background(), "a/b", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if _, ok := fake.objects["runs/a/b"]; !ok {
		t.Errorf("objects = %v, want key runs/a/b", fake.objects)
	}
}

func TestLocal_StaysInRoot(t *testing.T) {
	root := t.TempDir()
	l, err := NewLocal(filepath.Join(root, "store"))
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Put(context.Background(), "../../escape", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(l.Root(), "escape")); err != nil {
		t.Errorf("object not kept under root: %v", err)
	}
	if err := l.Put(context.Background(), "", nil); err == nil {
		t.Error("Put with empty name succeeded")
	}
}

func TestArchiver(t *testing.T) {
	dir := t.TempDir()
	vcd := filepath.Join(dir, "top.vcd")
	netlist := filepath.Join(dir, "synth_top.v")
	if err := os.WriteFile(vcd, []byte("$date"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(netlist, []byte("module top"), 0o644); err != nil {
		t.Fatal(err)
	}
	fake := newFakeS3()
	a := NewArchiver(NewS3(fake, "b", ""), nil)

	names, err := a.Archive(context.Background(), "r1", 3, []string{vcd, filepath.Join(dir, "missing.v"), netlist})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"r1/0003/top.vcd", "r1/0003/synth_top.v"}; !slices.Equal(names, want) {
		t.Errorf("names = %v, want %v", names, want)
	}
	if string(fake.objects["r1/0003/top.vcd"]) != "$date" {
		t.Errorf("vcd content = %q", fake.objects["r1/0003/top.vcd"])
	}
}

func TestArchiver_Errors(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "top.v")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	fake := newFakeS3()
	fake.putErr = errors.New("access denied")
	a := NewArchiver(NewS3(fake, "b", ""), nil)

	if _, err := a.Archive(context.Background(), "r1", 1, []string{f}); err == nil {
		t.Error("Archive succeeded with failing store")
	}
	if _, err := a.Archive(context.Background(), "a/b", 1, nil); err == nil {
		t.Error("Archive accepted run id with '/'")
	}
}

func TestNewS3Client(t *testing.T) {
	if _, err := NewS3Client(S3Config{}); err == nil {
		t.Error("NewS3Client without bucket succeeded")
	}
	c, err := NewS3Client(S3Config{Bucket: "b", Endpoint: "http://127.0.0.1:9000", PathStyle: true})
	if err != nil || c == nil {
		t.Errorf("NewS3Client = %v, %v", c, err)
	}
}
