package renderer

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSPIRV_MissingFileNamesGenerateStep(t *testing.T) {
	_, err := loadSPIRV(filepath.Join(t.TempDir(), vulkanVertexShaderFile))
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.ErrorContains(t, err, "go generate ./shaders")
}

func TestLoadSPIRV_ReadsWords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shader.spv")
	data := binary.LittleEndian.AppendUint32(nil, spirvMagic)
	data = binary.LittleEndian.AppendUint32(data, 0x00010000)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	words, err := loadSPIRV(path)
	require.NoError(t, err)
	assert.Equal(t, []uint32{spirvMagic, 0x00010000}, words)
}

func TestLoadSPIRV_RejectsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	for name, data := range map[string][]byte{
		"empty":     {},
		"unaligned": {0x03, 0x02, 0x23, 0x07, 0x00},
		"glsl":      []byte("#version 450\n"),
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, data, 0o644))
		_, err := loadSPIRV(path)
		assert.ErrorContains(t, err, "not little-endian SPIR-V", name)
	}
}
