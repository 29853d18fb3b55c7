package unlocker

import (
	"bytes"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"kfnunlocker/kfn"
)

type SubfileInfo struct {
	Name      string
	Type      kfn.SubfileType
	Size      int
	Encrypted bool

	// Pixel dimensions for decodable image subfiles, zero otherwise.
	Width  int
	Height int
}

type Report struct {
	Headers  []string
	Locked   bool
	Subfiles []SubfileInfo
}

// Inspect summarizes a container without modifying it.
func Inspect(f *kfn.File) *Report {
	r := &Report{}

	for i := range f.Headers {
		r.Headers = append(r.Headers, f.Headers[i].String())
	}
	if key := f.Header(kfn.HeaderKey); key != nil && !bytes.Equal(key.Data, make([]byte, 16)) {
		r.Locked = true
	}

	for _, sf := range f.Subfiles {
		info := SubfileInfo{
			Name:      string(sf.Name),
			Type:      sf.Type,
			Size:      len(sf.Data),
			Encrypted: sf.Encrypted,
		}
		if sf.Type == kfn.Image && !sf.Encrypted {
			if cfg, _, err := image.DecodeConfig(bytes.NewReader(sf.Data)); err == nil {
				info.Width = cfg.Width
				info.Height = cfg.Height
			}
		}
		r.Subfiles = append(r.Subfiles, info)
	}

	return r
}
