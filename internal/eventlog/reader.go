package eventlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const maxLineBytes = 16 << 20

// Stats reports what a scan saw.
type Stats struct {
	Lines   int
	Skipped int
}

// Scan decodes r line by line and hands each record to fn. Blank lines are
// ignored; lines that fail to decode or exceed maxLineBytes are skipped and
// counted. A non-nil error from fn stops the scan.
func Scan[T any](r io.Reader, fn func(T) error) (Stats, error) {
	var st Stats
	br := bufio.NewReaderSize(r, 64*1024)
	var line []byte
	oversized := false
	for {
		chunk, err := br.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			if !oversized {
				line = append(line, chunk...)
				if len(line) > maxLineBytes {
					oversized = true
					line = line[:0]
				}
			}
			continue
		}
		if err != nil && err != io.EOF {
			return st, err
		}
		if !oversized {
			line = append(line, chunk...)
			oversized = len(line) > maxLineBytes
		}

		if oversized {
			st.Skipped++
		} else if rec := bytes.TrimSpace(line); len(rec) > 0 {
			var v T
			if uerr := json.Unmarshal(rec, &v); uerr != nil {
				st.Skipped++
			} else {
				st.Lines++
				if ferr := fn(v); ferr != nil {
					return st, ferr
				}
			}
		}
		line = line[:0]
		oversized = false

		if err == io.EOF {
			return st, nil
		}
	}
}

// ReadFile scans a plain or zstd-compressed stream file.
func ReadFile[T any](path string, fn func(T) error) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return Stats{}, err
		}
		defer dec.Close()
		r = dec
	}
	st, err := Scan(r, fn)
	if err != nil {
		return st, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return st, nil
}

// Archive compresses every stream file in srcDir into dstDir as .ndjson.zst.
// Already-compressed files are copied as is.
func Archive(srcDir, dstDir string) ([]string, error) {
	files, err := ListFiles(srcDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(files))
	for _, src := range files {
		name := filepath.Base(src)
		if strings.HasSuffix(name, ExtPlain) {
			name = strings.TrimSuffix(name, ExtPlain) + ExtZstd
		}
		dst := filepath.Join(dstDir, name)
		if err := compressFile(src, dst); err != nil {
			return out, fmt.Errorf("archive %s: %w", filepath.Base(src), err)
		}
		out = append(out, dst)
	}
	return out, nil
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if strings.HasSuffix(src, ".zst") {
		if _, err := io.Copy(f, in); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		return err
	}
	if _, err := io.Copy(enc, in); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
