package util

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"

	"github.com/taigrr/colorhash"
	"golang.org/x/sync/errgroup"
)

// Hashes a file and returns the hash as a hex string
func GetFileHash(path string) (hash string, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", ErrExpectedFile
	}
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	return GetHash(file)
}

// GetHash calculates the SHA-256 hash of data from an io.Reader.
// It returns the hash as a hexadecimal string.
func GetHash(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// HashFiles hashes every path in files concurrently. The result maps the same
// keys to hex digests. The first failure cancels the rest.
func HashFiles(ctx context.Context, files map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(files))
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for key, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			hash, err := GetFileHash(path)
			if err != nil {
				return fmt.Errorf("hash %s: %w", path, err)
			}
			mu.Lock()
			out[key] = hash
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Bucket maps s to one of n stable buckets.
func Bucket(s string, n int) (int, error) {
	if n <= 0 {
		return 0, ErrInvalidBucketCount
	}
	b := int(colorhash.HashString(s)%1_000_003) % n
	if b < 0 {
		b += n
	}
	return b, nil
}
