// Package songini rewrites the Song.ini subfile embedded in a KFN
// container. Locked files carry effect sections the free player refuses
// to render; everything except the known effect types gets removed.
package songini

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"gopkg.in/ini.v1"
)

// Effect ids the player accepts:
// 1 = vertical text, 2 = classic karaoke, 21 = sprites, 51 = background,
// 53 = Milkdrop, 61 = CDG, 62 = video.
var validEffects = map[int]bool{
	1:  true,
	2:  true,
	21: true,
	51: true,
	53: true,
	61: true,
	62: true,
}

// FilterEffects decodes a Windows-1252 Song.ini, drops every [EffN]
// section whose id is not a known effect type and re-encodes the result.
func FilterEffects(raw []byte) ([]byte, error) {
	text, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding song config: %w", err)
	}

	cfg, err := ini.Load(text)
	if err != nil {
		return nil, fmt.Errorf("parsing song config: %w", err)
	}

	for _, section := range cfg.Sections() {
		name := section.Name()
		if name == ini.DefaultSection {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(name), "eff") {
			continue
		}
		id, err := section.Key("id").Int()
		if err != nil {
			return nil, fmt.Errorf("section %s: bad effect id: %w", name, err)
		}
		if validEffects[id] {
			continue
		}
		cfg.DeleteSection(name)
	}

	var out bytes.Buffer
	if _, err := cfg.WriteTo(&out); err != nil {
		return nil, fmt.Errorf("writing song config: %w", err)
	}

	encoded, err := charmap.Windows1252.NewEncoder().Bytes(out.Bytes())
	if err != nil {
		return nil, fmt.Errorf("encoding song config: %w", err)
	}
	return encoded, nil
}
