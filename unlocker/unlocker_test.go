package unlocker

import (
	"bytes"
	"crypto/aes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"kfnunlocker/kfn"
)

const songText = "[General]\nTitle = Test Song\n\n[Eff1]\nid = 51\n\n[Eff2]\nid = 99\n"

var testKey = []byte("0123456789abcdef")

// ecbEncrypt zero-pads plain to the block size and encrypts it the way
// the vendor does, block by block with no chaining.
func ecbEncrypt(t *testing.T, key, plain []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	padded := make([]byte, (len(plain)+aes.BlockSize-1)/aes.BlockSize*aes.BlockSize)
	copy(padded, plain)
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += aes.BlockSize {
		block.Encrypt(out[i:i+aes.BlockSize], padded[i:i+aes.BlockSize])
	}
	return out
}

func lockedFile(t *testing.T) *kfn.File {
	t.Helper()
	audio := []byte("not really an mp3")
	return &kfn.File{
		Headers: []kfn.Header{
			{ID: "DIFM", Flag: kfn.FlagUint, Uint: 3},
			{ID: kfn.HeaderKey, Flag: kfn.FlagData, Data: append([]byte(nil), testKey...)},
			{ID: kfn.HeaderRights, Flag: kfn.FlagUint, Uint: 1},
		},
		Subfiles: []*kfn.Subfile{
			{
				Name:      []byte("Song.ini"),
				Type:      kfn.Song,
				Length:    uint32(len(songText)),
				Data:      ecbEncrypt(t, testKey, []byte(songText)),
				Encrypted: true,
			},
			{
				Name:   []byte("audio.mp3"),
				Type:   kfn.Audio,
				Length: uint32(len(audio)),
				Data:   audio,
			},
		},
	}
}

func TestUnlockDecryptsAndScrubs(t *testing.T) {
	f := lockedFile(t)
	if err := Unlock(f); err != nil {
		t.Fatal(err)
	}

	key := f.Header(kfn.HeaderKey)
	if !bytes.Equal(key.Data, make([]byte, 16)) {
		t.Errorf("FLID key not zeroed: %x", key.Data)
	}
	rights := f.Header(kfn.HeaderRights)
	if rights.Flag != kfn.FlagUint || rights.Uint != 0 {
		t.Errorf("RGHT not cleared: %v", rights)
	}

	song := f.Subfiles[0]
	if song.Encrypted {
		t.Error("song subfile still marked encrypted")
	}
	if song.Length != uint32(len(song.Data)) {
		t.Errorf("song length %d does not match data length %d", song.Length, len(song.Data))
	}
	if !bytes.Contains(song.Data, []byte("[Eff1]")) {
		t.Error("valid effect was removed from song config")
	}
	if bytes.Contains(song.Data, []byte("[Eff2]")) {
		t.Error("invalid effect survived in song config")
	}

	if string(f.Subfiles[1].Data) != "not really an mp3" {
		t.Errorf("unencrypted subfile changed: %q", f.Subfiles[1].Data)
	}
}

func TestUnlockDecryptsToExactPlaintext(t *testing.T) {
	// An encrypted non-song subfile must come out byte-identical to the
	// original plaintext; no rewrite applies to it.
	plain := []byte("binary payload that is not block aligned")
	f := &kfn.File{
		Headers: []kfn.Header{
			{ID: kfn.HeaderKey, Flag: kfn.FlagData, Data: append([]byte(nil), testKey...)},
		},
		Subfiles: []*kfn.Subfile{
			{
				Name:      []byte("cover.jpg"),
				Type:      kfn.Image,
				Length:    uint32(len(plain)),
				Data:      ecbEncrypt(t, testKey, plain),
				Encrypted: true,
			},
		},
	}

	if err := Unlock(f); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(f.Subfiles[0].Data, plain) {
		t.Errorf("decryption mismatch\nwant %q\ngot  %q", plain, f.Subfiles[0].Data)
	}
}

func TestUnlockIdempotent(t *testing.T) {
	f := lockedFile(t)
	if err := Unlock(f); err != nil {
		t.Fatal(err)
	}
	first, err := f.Encode()
	if err != nil {
		t.Fatal(err)
	}

	g, err := kfn.Decode(first)
	if err != nil {
		t.Fatal(err)
	}
	if err := Unlock(g); err != nil {
		t.Fatal(err)
	}
	second, err := g.Encode()
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(first, second) {
		t.Error("unlocking an unlocked container changed it")
	}
}

func TestUnlockMissingKeyHeader(t *testing.T) {
	f := &kfn.File{Headers: []kfn.Header{{ID: "DIFM", Flag: kfn.FlagUint, Uint: 1}}}
	if err := Unlock(f); !errors.Is(err, ErrNoKey) {
		t.Errorf("expected ErrNoKey, got %v", err)
	}
}

func TestUnlockBadKeySize(t *testing.T) {
	f := lockedFile(t)
	f.Header(kfn.HeaderKey).Data = []byte("short")
	if err := Unlock(f); err == nil {
		t.Error("expected an error for a bad key size")
	}
}

func TestUnlockFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "song.kfn")
	dst := filepath.Join(dir, "song-Unlocked.kfn")

	locked, err := lockedFile(t).Encode()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src, locked, 0644); err != nil {
		t.Fatal(err)
	}

	if err := UnlockFile(src, dst); err != nil {
		t.Fatal(err)
	}

	out, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	f, err := kfn.Decode(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(f.Header(kfn.HeaderKey).Data, make([]byte, 16)) {
		t.Error("output container still carries a key")
	}
	for _, sf := range f.Subfiles {
		if sf.Encrypted {
			t.Errorf("subfile %q still encrypted", sf.Name)
		}
	}
}

func TestUnlockFilePreservesLengthWithoutRewrite(t *testing.T) {
	// With nothing to decrypt and no song config, unlocking is a pure
	// envelope rewrite: output matches input byte for byte.
	f := &kfn.File{
		Headers: []kfn.Header{
			{ID: kfn.HeaderKey, Flag: kfn.FlagData, Data: make([]byte, 16)},
			{ID: kfn.HeaderRights, Flag: kfn.FlagUint, Uint: 0},
		},
		Subfiles: []*kfn.Subfile{
			{Name: []byte("audio.mp3"), Type: kfn.Audio, Length: 3, Data: []byte("mp3")},
		},
	}
	in, err := f.Encode()
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "in.kfn")
	dst := filepath.Join(dir, "out.kfn")
	if err := os.WriteFile(src, in, 0644); err != nil {
		t.Fatal(err)
	}
	if err := UnlockFile(src, dst); err != nil {
		t.Fatal(err)
	}

	out, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(in, out) {
		t.Errorf("already-unlocked container changed: %d -> %d bytes", len(in), len(out))
	}
}

func TestUnlockFileMissingInput(t *testing.T) {
	dir := t.TempDir()
	err := UnlockFile(filepath.Join(dir, "missing.kfn"), filepath.Join(dir, "out.kfn"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestUnlockFileUnwritableOutput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "song.kfn")
	locked, err := lockedFile(t).Encode()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src, locked, 0644); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(dir, "no", "such", "dir", "out.kfn")
	if err := UnlockFile(src, dst); err == nil {
		t.Error("expected an error for an unwritable output path")
	}
}

func TestOutputPath(t *testing.T) {
	src := filepath.Join("songs", "demo.kfn")
	want := filepath.Join("songs", "demo-Unlocked.kfn")
	if got := OutputPath(src); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
