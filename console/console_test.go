package console

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	qt "github.com/frankban/quicktest"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pierrec/lz4"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// spirv returns a minimal blob: the magic number followed by words.
func spirv(words ...uint32) []byte {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.LittleEndian, append([]uint32{spirvMagic}, words...))
	return buf.Bytes()
}

func compress(c *qt.C, data []byte) []byte {
	buf := &bytes.Buffer{}
	w := lz4.NewWriter(buf)
	_, err := w.Write(data)
	c.Assert(err, qt.IsNil)
	c.Assert(w.Close(), qt.IsNil)
	return buf.Bytes()
}

func writeFile(c *qt.C, path string, data []byte) {
	c.Assert(os.WriteFile(path, data, 0o644), qt.IsNil)
}

func TestLoadShaders(t *testing.T) {
	c := qt.New(t)
	dir := c.TempDir()

	writeFile(c, filepath.Join(dir, vertexShader), spirv(1, 2, 3))
	writeFile(c, filepath.Join(dir, fragmentShader), spirv(4))

	shaders, err := LoadShaders(context.Background(), dir)
	c.Assert(err, qt.IsNil)
	c.Assert(shaders.Vertex, qt.DeepEquals, []uint32{spirvMagic, 1, 2, 3})
	c.Assert(shaders.Fragment, qt.DeepEquals, []uint32{spirvMagic, 4})
}

func TestLoadCompressedShaders(t *testing.T) {
	c := qt.New(t)
	dir := c.TempDir()

	writeFile(c, filepath.Join(dir, vertexShader+compressedExt), compress(c, spirv(7, 8)))
	writeFile(c, filepath.Join(dir, fragmentShader), spirv(9))

	shaders, err := LoadShaders(context.Background(), dir)
	c.Assert(err, qt.IsNil)
	c.Assert(shaders.Vertex, qt.DeepEquals, []uint32{spirvMagic, 7, 8})
	c.Assert(shaders.Fragment, qt.DeepEquals, []uint32{spirvMagic, 9})
}

func TestUncompressedShaderWins(t *testing.T) {
	c := qt.New(t)
	dir := c.TempDir()

	writeFile(c, filepath.Join(dir, vertexShader), spirv(1))
	writeFile(c, filepath.Join(dir, vertexShader+compressedExt), compress(c, spirv(2)))
	writeFile(c, filepath.Join(dir, fragmentShader), spirv(3))

	shaders, err := LoadShaders(context.Background(), dir)
	c.Assert(err, qt.IsNil)
	c.Assert(shaders.Vertex, qt.DeepEquals, []uint32{spirvMagic, 1})
}

func TestMissingShader(t *testing.T) {
	c := qt.New(t)
	dir := c.TempDir()

	writeFile(c, filepath.Join(dir, vertexShader), spirv(1))

	_, err := LoadShaders(context.Background(), dir)
	c.Assert(err, qt.ErrorMatches, "read shader console.frag.spv: .*")
	c.Assert(errors.Is(err, os.ErrNotExist), qt.IsTrue)
}

func TestCorruptShader(t *testing.T) {
	c := qt.New(t)
	dir := c.TempDir()

	writeFile(c, filepath.Join(dir, vertexShader), []byte{1, 2, 3})
	writeFile(c, filepath.Join(dir, fragmentShader), spirv(1))

	_, err := LoadShaders(context.Background(), dir)
	c.Assert(err, qt.ErrorMatches, "read shader console.vert.spv: bytecode size 3 is not a positive multiple of 4")
}

func TestBytesToBytecode(t *testing.T) {
	c := qt.New(t)

	code, err := bytesToBytecode([]byte{0x03, 0x02, 0x23, 0x07, 0x01, 0x00, 0x01, 0x00})
	c.Assert(err, qt.IsNil)
	c.Assert(code, qt.DeepEquals, []uint32{spirvMagic, 0x00010001})

	_, err = bytesToBytecode(nil)
	c.Assert(err, qt.Not(qt.IsNil))

	_, err = bytesToBytecode([]byte{0, 0, 0, 0})
	c.Assert(err, qt.ErrorMatches, "bad SPIR-V magic .*")
}

func TestShaderDir(t *testing.T) {
	c := qt.New(t)
	c.Assert(ShaderDir("baseq2"), qt.Equals, filepath.Join("baseq2", "shaders"))
}

func TestTransform(t *testing.T) {
	c := qt.New(t)

	c.Assert(Transform(-1, -1, 2, 2), qt.Equals, Fullscreen)
	c.Assert(Transform(-1, -1, 2, 1), qt.Equals, mgl32.Vec4{1, 0.5, 0, -0.5})
}

func TestLayout(t *testing.T) {
	c := qt.New(t)

	c.Assert(binary.Size(Uniforms{}), qt.Equals, uniformSize)
	c.Assert(len(vertices)*4%vertexStride, qt.Equals, 0)
	for _, index := range indices {
		c.Assert(int(index) < len(vertices)*4/vertexStride, qt.IsTrue)
	}
}

func TestUniformBindingStages(t *testing.T) {
	c := qt.New(t)

	c.Assert(uniformBinding.DescriptorType, qt.Equals, core1_0.DescriptorTypeUniformBuffer)
	c.Assert(uniformBinding.StageFlags&core1_0.StageVertex, qt.Equals, core1_0.StageVertex)
	c.Assert(uniformBinding.StageFlags&core1_0.StageFragment, qt.Equals, core1_0.StageFragment)
}
