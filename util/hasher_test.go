package util

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetFileHash(t *testing.T) {
	// Create temp directory for test files
	tmpDir := t.TempDir()

	// Create test files with known content
	emptyFile := filepath.Join(tmpDir, "empty.txt")
	os.WriteFile(emptyFile, []byte{}, 0644)

	helloFile := filepath.Join(tmpDir, "hello.txt")
	os.WriteFile(helloFile, []byte("hello world"), 0644)

	binaryFile := filepath.Join(tmpDir, "binary.bin")
	os.WriteFile(binaryFile, []byte{0x00, 0x01, 0x02, 0xff}, 0644)

	subDir := filepath.Join(tmpDir, "subdir")
	os.Mkdir(subDir, 0755)

	tests := []struct {
		name     string
		path     string
		wantHash string
		wantErr  error
	}{
		{
			name:     "empty file",
			path:     emptyFile,
			wantHash: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
			wantErr:  nil,
		},
		{
			name:     "hello world file",
			path:     helloFile,
			wantHash: "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
			wantErr:  nil,
		},
		{
			name:     "binary file",
			path:     binaryFile,
			wantHash: "3d1f57c984978ef98a18378c8166c1cb8ede02c03eeb6aee7e2f121dfeee3e56",
			wantErr:  nil,
		},
		{
			name:    "directory returns error",
			path:    subDir,
			wantErr: ErrExpectedFile,
		},
		{
			name:    "non-existent file",
			path:    filepath.Join(tmpDir, "nonexistent.txt"),
			wantErr: os.ErrNotExist, // Will be wrapped, check with errors.Is
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotHash, err := GetFileHash(tt.path)

			if tt.wantErr != nil {
				if err == nil {
					t.Errorf("GetFileHash() expected error %v, got nil", tt.wantErr)
					return
				}
				// For os.ErrNotExist, the error is wrapped
				if tt.wantErr == os.ErrNotExist {
					if !os.IsNotExist(err) {
						t.Errorf("GetFileHash() error = %v, want os.ErrNotExist", err)
					}
					return
				}
				if err != tt.wantErr {
					t.Errorf("GetFileHash() error = %v, want %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Errorf("GetFileHash() unexpected error = %v", err)
				return
			}

			if gotHash != tt.wantHash {
				t.Errorf("GetFileHash() = %v, want %v", gotHash, tt.wantHash)
			}
		})
	}
}

func TestGetFileHash_LargeFile(t *testing.T) {
	tmpDir := t.TempDir()

	// Create a larger file (1MB)
	largeFile := filepath.Join(tmpDir, "large.bin")
	data := make([]byte, 1024*1024)
	for i := range data {
		data[i] = byte(i % 256)
	}
	os.WriteFile(largeFile, data, 0644)

	hash, err := GetFileHash(largeFile)
	if err != nil {
		t.Fatalf("GetFileHash() error = %v", err)
	}

	// Hash should be 64 hex characters (256 bits = 32 bytes = 64 hex chars)
	if len(hash) != 64 {
		t.Errorf("GetFileHash() hash length = %d, want 64", len(hash))
	}

	// Should be all lowercase hex
	for _, c := range hash {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Errorf("GetFileHash() hash contains invalid character: %c", c)
			break
		}
	}
}

func TestGetHash(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		input   string
		wantErr error
	}{
		{
			name:    "empty input",
			input:   "",
			want:    "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
			wantErr: nil,
		},
		{
			name:    "hello world",
			input:   "hello world",
			want:    "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
			wantErr: nil,
		},
		{
			name:    "newline at end",
			input:   "hello\n",
			want:    "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03",
			wantErr: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := strings.NewReader(tt.input)
			got, err := GetHash(reader)
			if err != tt.wantErr {
				t.Errorf("GetHash() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("GetHash() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHashFiles(t *testing.T) {
	tmpDir := t.TempDir()
	files := map[string]string{}
	for i, content := range []string{"", "hello world", "hello\n"} {
		p := filepath.Join(tmpDir, fmt.Sprintf("f%d", i))
		os.WriteFile(p, []byte(content), 0644)
		files[fmt.Sprintf("dir/f%d", i)] = p
	}

	got, err := HashFiles(context.Background(), files)
	if err != nil {
		t.Fatalf("HashFiles() error = %v", err)
	}
	want := map[string]string{
		"dir/f0": "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		"dir/f1": "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		"dir/f2": "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("HashFiles()[%q] = %v, want %v", k, got[k], v)
		}
	}

	files["gone"] = filepath.Join(tmpDir, "missing")
	if _, err := HashFiles(context.Background(), files); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("HashFiles() with a missing file error = %v, want os.ErrNotExist", err)
	}
}

func TestBucket(t *testing.T) {
	tests := []struct {
		name string
		s    string
		n    int
	}{
		{name: "single bucket", s: "src", n: 1},
		{name: "palette", s: "vendor", n: 6},
		{name: "many buckets", s: "b94d27b9934d3e08", n: 1000},
		{name: "empty string", s: "", n: 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Bucket(tt.s, tt.n)
			if err != nil {
				t.Fatalf("Bucket() error = %v", err)
			}
			if got < 0 || got >= tt.n {
				t.Errorf("Bucket(%q, %d) = %d, out of range", tt.s, tt.n, got)
			}
			again, _ := Bucket(tt.s, tt.n)
			if again != got {
				t.Errorf("Bucket(%q, %d) not stable: %d then %d", tt.s, tt.n, got, again)
			}
		})
	}
	if _, err := Bucket("x", 0); err != ErrInvalidBucketCount {
		t.Errorf("Bucket() with zero buckets error = %v, want ErrInvalidBucketCount", err)
	}
}
