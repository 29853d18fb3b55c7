// Package unlocker removes the lock mechanism from KFN containers.
package unlocker

import (
	"bytes"
	"crypto/aes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"kfnunlocker/kfn"
	"kfnunlocker/songini"
)

var ErrNoKey = errors.New("unlocker: container has no FLID key header")

// Unlock reverses the lock in place: decrypts encrypted subfiles with
// the FLID key, zeroes the key, clears the publishing rights header and
// strips unsupported effects from every song config subfile.
//
// Already-unlocked containers pass through unchanged apart from the
// song config rewrite, which is a fixed point after the first run.
func Unlock(f *kfn.File) error {
	key := f.Header(kfn.HeaderKey)
	if key == nil {
		return ErrNoKey
	}

	if !bytes.Equal(key.Data, make([]byte, 16)) {
		block, err := aes.NewCipher(key.Data)
		if err != nil {
			return fmt.Errorf("bad FLID key: %w", err)
		}

		for _, sf := range f.Subfiles {
			if !sf.Encrypted {
				continue
			}
			if len(sf.Data)%aes.BlockSize != 0 {
				return fmt.Errorf("subfile %q: encrypted length %d not a multiple of the AES block size", sf.Name, len(sf.Data))
			}
			if int(sf.Length) > len(sf.Data) {
				return fmt.Errorf("subfile %q: plaintext length %d exceeds stored length %d", sf.Name, sf.Length, len(sf.Data))
			}

			// The vendor uses AES-128 in ECB mode, so each block
			// decrypts independently.
			plain := make([]byte, len(sf.Data))
			for i := 0; i < len(sf.Data); i += aes.BlockSize {
				block.Decrypt(plain[i:i+aes.BlockSize], sf.Data[i:i+aes.BlockSize])
			}
			sf.Data = plain[:sf.Length]
			sf.Encrypted = false
		}

		key.Data = make([]byte, 16)
	}

	if rights := f.Header(kfn.HeaderRights); rights != nil {
		*rights = kfn.Header{ID: kfn.HeaderRights, Flag: kfn.FlagUint, Uint: 0}
	}

	for _, sf := range f.Subfiles {
		if sf.Type != kfn.Song {
			continue
		}
		filtered, err := songini.FilterEffects(sf.Data)
		if err != nil {
			return fmt.Errorf("subfile %q: %w", sf.Name, err)
		}
		sf.Data = filtered
		sf.Length = uint32(len(filtered))
	}

	return nil
}

// UnlockFile reads the container at src, unlocks it and writes the
// result to dst. The source error wraps os.ErrNotExist when the input
// is missing.
func UnlockFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading locked file: %w", err)
	}

	f, err := kfn.Decode(data)
	if err != nil {
		return err
	}
	if err := Unlock(f); err != nil {
		return err
	}

	out, err := f.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, out, 0644); err != nil {
		return fmt.Errorf("writing unlocked file: %w", err)
	}
	return nil
}

// OutputPath derives the default destination for an unlocked copy:
// dir/song.kfn becomes dir/song-Unlocked.kfn.
func OutputPath(src string) string {
	ext := filepath.Ext(src)
	return strings.TrimSuffix(src, ext) + "-Unlocked" + ext
}
