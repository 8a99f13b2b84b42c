// Package imgio reads input images and writes cut-out results.
package imgio

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/krau/birefnet-go/pipeline"
)

type Format string

const (
	PNG  Format = "png"
	WEBP Format = "webp"
	AVIF Format = "avif"
)

const DefaultQuality = 95

var errUnknownFormat = errors.New("unknown output format")

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))); f {
	case PNG, WEBP, AVIF:
		return f, nil
	case "":
		return PNG, nil
	default:
		return "", fmt.Errorf("%w %q (want png, webp or avif)", errUnknownFormat, s)
	}
}

func (f Format) Ext() string { return "." + string(f) }

func (f Format) ContentType() string {
	return "image/" + string(f)
}

// Decode reads any registered image format.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, &pipeline.InputError{Code: pipeline.CodeDecodeFailed, Err: err}
	}
	return img, nil
}

// Open decodes the image at path.
func Open(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		code := pipeline.CodeInvalidImage
		if errors.Is(err, fs.ErrNotExist) {
			code = pipeline.CodeFileNotFound
		}
		return nil, &pipeline.InputError{Path: path, Code: code, Err: err}
	}
	defer f.Close()

	img, _, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, &pipeline.InputError{Path: path, Code: pipeline.CodeDecodeFailed, Err: err}
	}
	return img, nil
}

// Encode writes img in the given format. quality applies to the lossy
// formats; png is always lossless.
func Encode(w io.Writer, img image.Image, format Format, quality int) error {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	switch format {
	case PNG, "":
		enc := png.Encoder{CompressionLevel: png.DefaultCompression}
		return enc.Encode(w, img)
	case WEBP:
		return webp.Encode(w, img, webp.Options{Quality: quality, Method: 4})
	case AVIF:
		return avif.Encode(w, img, avif.Options{
			Quality:      quality,
			QualityAlpha: quality,
			Speed:        avif.DefaultSpeed,
		})
	default:
		return fmt.Errorf("%w %q", errUnknownFormat, format)
	}
}

// Save encodes img to path, creating the parent directory.
func Save(path string, img image.Image, format Format, quality int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &pipeline.EncodeError{Path: path, Err: err}
	}
	f, err := os.Create(path)
	if err != nil {
		return &pipeline.EncodeError{Path: path, Err: err}
	}
	bw := bufio.NewWriter(f)
	if err := Encode(bw, img, format, quality); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return &pipeline.EncodeError{Path: path, Err: err}
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return &pipeline.EncodeError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &pipeline.EncodeError{Path: path, Err: err}
	}
	return nil
}

// OutputPath names the result for input: {stem}{suffix}.{format}, placed in
// dir or next to the input when dir is empty.
func OutputPath(input, dir, suffix string, format Format) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, stem+suffix+format.Ext())
}
