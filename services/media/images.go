package mediasvc

import (
	"bytes"
	"image"
	"io"
	"io/ioutil"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/trezcool/darslik/core"
)

const (
	defaultMaxSide = 1920
	jpegQuality    = 85
	maxImageBytes  = 20 << 20
)

var ErrUnsupportedImage = errors.New("unsupported image format (use jpg, png, gif or webp)")

// ImageNormalizer decodes uploaded images (webp included), applies their EXIF orientation,
// fits them into a max box and re-encodes them: PNG stays PNG (drawings), everything else becomes JPEG.
type ImageNormalizer struct {
	maxWidth  int
	maxHeight int
}

var _ core.ImageProcessor = (*ImageNormalizer)(nil) // interface compliance check

func NewImageNormalizer(conf core.MediaConfig) *ImageNormalizer {
	n := &ImageNormalizer{maxWidth: conf.ImageMaxWidth, maxHeight: conf.ImageMaxHeight}
	if n.maxWidth <= 0 {
		n.maxWidth = defaultMaxSide
	}
	if n.maxHeight <= 0 {
		n.maxHeight = defaultMaxSide
	}
	return n
}

func (n *ImageNormalizer) Process(r io.Reader, filename string) (core.ImageFile, error) {
	data, err := ioutil.ReadAll(io.LimitReader(r, maxImageBytes+1))
	if err != nil {
		return core.ImageFile{}, errors.Wrap(err, "reading image")
	}
	if len(data) == 0 {
		return core.ImageFile{}, errors.New("empty image")
	}
	if len(data) > maxImageBytes {
		return core.ImageFile{}, errors.New("image too large")
	}

	img, format, err := decodeImage(data, filename)
	if err != nil {
		return core.ImageFile{}, err
	}
	bounds := img.Bounds()
	out := core.ImageFile{SourceWidth: bounds.Dx(), SourceHeight: bounds.Dy()}

	if bounds.Dx() > n.maxWidth || bounds.Dy() > n.maxHeight {
		img = imaging.Fit(img, n.maxWidth, n.maxHeight, imaging.Lanczos)
	}

	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if base == "" || base == "." {
		base = "image"
	}
	var buf bytes.Buffer
	if format == "png" {
		err = imaging.Encode(&buf, img, imaging.PNG)
		out.Filename, out.ContentType = base+".png", "image/png"
	} else {
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality))
		out.Filename, out.ContentType = base+".jpg", "image/jpeg"
	}
	if err != nil {
		return core.ImageFile{}, errors.Wrap(err, "encoding image")
	}
	out.Data = buf.Bytes()
	return out, nil
}

// decodeImage sniffs the content type first, then falls back on the file extension.
func decodeImage(data []byte, filename string) (image.Image, string, error) {
	ct := http.DetectContentType(data)
	ext := strings.ToLower(filepath.Ext(filename))

	switch {
	case strings.Contains(ct, "webp"), ct == "application/octet-stream" && ext == ".webp":
		img, err := webp.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, "", errors.Wrap(err, "decoding webp")
		}
		return img, "webp", nil
	case strings.HasPrefix(ct, "image/"):
		img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err != nil {
			return nil, "", errors.Wrap(err, "decoding image")
		}
		return img, strings.TrimPrefix(ct, "image/"), nil
	}
	return nil, "", ErrUnsupportedImage
}
