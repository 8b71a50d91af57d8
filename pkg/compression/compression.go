// Package compression selects and applies a payload compression algorithm.
//
// Every recipient advertises a list of algorithms ranked by preference. BestFit
// picks one algorithm that every recipient accepts. "none" is never a candidate
// but is always available as the fallback.
package compression

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Algorithm ids
const (
	None    = "none"
	Gzip    = "gzip"
	Deflate = "deflate"
	Zstd    = "zstd"
	Brotli  = "brotli"
)

// MaxDecompressedSize bounds the output of Decompress
const MaxDecompressedSize = 16 << 20

var (
	ErrUnsupported = errors.New("unsupported compression algorithm")
	ErrTooLarge    = errors.New("decompressed payload too large")
)

// Supported returns the algorithms this build can apply, most preferred first
func Supported() []string {
	return []string{Zstd, Brotli, Gzip, Deflate, None}
}

// IsSupported reports whether alg can be compressed and decompressed locally
func IsSupported(alg string) bool {
	switch alg {
	case None, Gzip, Deflate, Zstd, Brotli:
		return true
	default:
		return false
	}
}

// BestFit picks one algorithm for a set of recipients, given one ranked list per
// recipient. Candidates are seeded from the first list with their positions as
// scores. Each further list adds its position for the candidates it contains and
// drops the ones it lacks. The lowest surviving score wins; ties go to the
// earlier entry of the first list. An empty candidate set yields None.
func BestFit(ranked [][]string) string {
	if len(ranked) == 0 {
		return None
	}
	if len(ranked) == 1 {
		if len(ranked[0]) == 0 {
			return None
		}
		return ranked[0][0]
	}

	scores := make(map[string]int)
	var order []string
	for i, alg := range ranked[0] {
		if alg == None {
			continue
		}
		if _, seen := scores[alg]; seen {
			continue
		}
		scores[alg] = i
		order = append(order, alg)
	}

	for _, list := range ranked[1:] {
		if len(scores) == 0 {
			return None
		}
		positions := make(map[string]int, len(list))
		for i, alg := range list {
			if _, seen := positions[alg]; !seen {
				positions[alg] = i
			}
		}
		for alg := range scores {
			pos, ok := positions[alg]
			if !ok {
				delete(scores, alg)
				continue
			}
			scores[alg] += pos
		}
	}

	best := None
	bestScore := 0
	for _, alg := range order {
		score, ok := scores[alg]
		if !ok {
			continue
		}
		if best == None || score < bestScore {
			best = alg
			bestScore = score
		}
	}
	return best
}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdOnce    sync.Once
	zstdErr     error
)

func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil)
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil,
			zstd.WithDecoderMaxMemory(MaxDecompressedSize),
			zstd.WithDecoderMaxWindow(MaxDecompressedSize),
		)
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

// Compress applies alg to data. None returns data unchanged.
func Compress(alg string, data []byte) ([]byte, error) {
	switch alg {
	case None, "":
		return data, nil
	case Zstd:
		enc, _, err := zstdCodec()
		if err != nil {
			return nil, err
		}
		return enc.EncodeAll(data, nil), nil
	case Gzip:
		return writeAll(data, func(w io.Writer) (io.WriteCloser, error) {
			return gzip.NewWriter(w), nil
		})
	case Deflate:
		return writeAll(data, func(w io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(w, flate.DefaultCompression)
		})
	case Brotli:
		return writeAll(data, func(w io.Writer) (io.WriteCloser, error) {
			return brotli.NewWriter(w), nil
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, alg)
	}
}

// Decompress reverses Compress. Output larger than MaxDecompressedSize fails
// with ErrTooLarge.
func Decompress(alg string, data []byte) ([]byte, error) {
	return DecompressLimit(alg, data, MaxDecompressedSize)
}

// DecompressLimit is Decompress with a caller-chosen output limit. The limit
// is capped at MaxDecompressedSize; zero or less means the cap.
func DecompressLimit(alg string, data []byte, limit int) ([]byte, error) {
	if limit <= 0 || limit > MaxDecompressedSize {
		limit = MaxDecompressedSize
	}
	switch alg {
	case None, "":
		if len(data) > limit {
			return nil, tooLarge(limit)
		}
		return data, nil
	case Zstd:
		_, dec, err := zstdCodec()
		if err != nil {
			return nil, err
		}
		out, err := dec.DecodeAll(data, nil)
		if errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded) {
			return nil, tooLarge(limit)
		}
		if err != nil {
			return nil, err
		}
		if len(out) > limit {
			return nil, tooLarge(limit)
		}
		return out, nil
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return readLimited(r, limit)
	case Deflate:
		r := flate.NewReader(bytes.NewReader(data))
		defer r.Close()
		return readLimited(r, limit)
	case Brotli:
		return readLimited(brotli.NewReader(bytes.NewReader(data)), limit)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, alg)
	}
}

func readLimited(r io.Reader, limit int) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	if len(out) > limit {
		return nil, tooLarge(limit)
	}
	return out, nil
}

func tooLarge(limit int) error {
	return fmt.Errorf("%w: over %d bytes", ErrTooLarge, limit)
}

func writeAll(data []byte, open func(io.Writer) (io.WriteCloser, error)) ([]byte, error) {
	var buf bytes.Buffer
	w, err := open(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
