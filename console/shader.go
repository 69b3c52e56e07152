package console

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/pierrec/lz4"
	"golang.org/x/sync/errgroup"
)

const (
	vertexShader   = "console.vert.spv"
	fragmentShader = "console.frag.spv"

	compressedExt = ".lz4"

	spirvMagic = 0x07230203
)

// ShaderDir is where shader blobs live under the game directory.
func ShaderDir(gamedir string) string {
	return filepath.Join(gamedir, "shaders")
}

// Shaders is SPIR-V bytecode for the console's two stages.
type Shaders struct {
	Vertex   []uint32
	Fragment []uint32
}

// LoadShaders reads both console shaders from dir at the same time.
func LoadShaders(ctx context.Context, dir string) (Shaders, error) {
	var shaders Shaders

	group, _ := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		shaders.Vertex, err = readShader(filepath.Join(dir, vertexShader))
		return err
	})
	group.Go(func() error {
		var err error
		shaders.Fragment, err = readShader(filepath.Join(dir, fragmentShader))
		return err
	})

	if err := group.Wait(); err != nil {
		return Shaders{}, err
	}
	return shaders, nil
}

// readShader reads path, or path.lz4 when only the compressed blob exists.
func readShader(path string) ([]uint32, error) {
	code, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		code, err = readCompressed(path + compressedExt)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read shader %s", filepath.Base(path))
	}
	byteCode, err := bytesToBytecode(code)
	if err != nil {
		return nil, errors.Wrapf(err, "read shader %s", filepath.Base(path))
	}
	return byteCode, nil
}

func readCompressed(path string) ([]byte, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	code, err := io.ReadAll(lz4.NewReader(bytes.NewReader(compressed)))
	if err != nil {
		return nil, errors.Wrap(err, "decompress")
	}
	return code, nil
}

func bytesToBytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Newf("bytecode size %d is not a positive multiple of 4", len(b))
	}

	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	if byteCode[0] != spirvMagic {
		return nil, errors.Newf("bad SPIR-V magic %#08x", byteCode[0])
	}
	return byteCode, nil
}
