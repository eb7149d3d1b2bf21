package loader

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

var (
	errInvalidGLTFVersion = errors.New("invalid glTF version: must be 2.x")
	errInvalidGLB         = errors.New("invalid GLB container")
	errMissingJSONChunk   = errors.New("GLB file missing JSON chunk")
	errInvalidDataURI     = errors.New("invalid data URI")
	errBufferSizeMismatch = errors.New("buffer size mismatch")
)

// gltfFile is a parsed glTF document with every buffer loaded into memory.
type gltfFile struct {
	doc *gltfDocument

	// baseDir resolves relative buffer and image URIs.
	baseDir string
}

// parseGLTFFile reads and parses a .gltf or .glb file.
//
// Parameters:
//   - path: the file path
//
// Returns:
//   - *gltfFile: the parsed file
//   - error: a read, container, JSON or buffer error
func parseGLTFFile(path string) (*gltfFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return parseGLTFBytes(data, filepath.Dir(path))
}

// parseGLTFBytes parses glTF JSON or a GLB container. GLB is recognized by its magic number.
func parseGLTFBytes(data []byte, baseDir string) (*gltfFile, error) {
	jsonData, bin := data, []byte(nil)
	if len(data) >= 4 && binary.LittleEndian.Uint32(data) == glbMagic {
		var err error
		jsonData, bin, err = splitGLB(data)
		if err != nil {
			return nil, err
		}
	}

	var doc gltfDocument
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse glTF JSON: %w", err)
	}
	if !strings.HasPrefix(doc.Asset.Version, "2.") {
		return nil, errInvalidGLTFVersion
	}

	f := &gltfFile{doc: &doc, baseDir: baseDir}
	if err := f.loadBuffers(bin); err != nil {
		return nil, fmt.Errorf("failed to load buffers: %w", err)
	}
	return f, nil
}

// splitGLB returns the JSON and BIN chunks of a GLB container.
func splitGLB(data []byte) (jsonChunk, binChunk []byte, err error) {
	if len(data) < 12 {
		return nil, nil, fmt.Errorf("%w: %d bytes", errInvalidGLB, len(data))
	}
	if v := binary.LittleEndian.Uint32(data[4:]); v != glbVersion {
		return nil, nil, fmt.Errorf("%w: version %d", errInvalidGLB, v)
	}
	total := int(binary.LittleEndian.Uint32(data[8:]))
	if total > len(data) {
		return nil, nil, fmt.Errorf("%w: header claims %d bytes, have %d", errInvalidGLB, total, len(data))
	}

	for off := 12; off+8 <= total; {
		length := int(binary.LittleEndian.Uint32(data[off:]))
		kind := binary.LittleEndian.Uint32(data[off+4:])
		start, end := off+8, off+8+length
		if end > total {
			return nil, nil, fmt.Errorf("%w: chunk overruns file", errInvalidGLB)
		}
		switch kind {
		case glbChunkJSON:
			jsonChunk = data[start:end]
		case glbChunkBIN:
			binChunk = data[start:end]
		}
		off = end
	}
	if jsonChunk == nil {
		return nil, nil, errMissingJSONChunk
	}
	return jsonChunk, binChunk, nil
}

// loadBuffers fills every buffer from its URI, or buffer 0 from the GLB binary chunk.
func (f *gltfFile) loadBuffers(bin []byte) error {
	for i := range f.doc.Buffers {
		buf := &f.doc.Buffers[i]
		switch {
		case buf.URI == "" && i == 0 && bin != nil:
			buf.data = bin
		case buf.URI == "":
			return fmt.Errorf("buffer %d has no URI and no GLB binary chunk", i)
		default:
			data, err := f.readURI(buf.URI)
			if err != nil {
				return fmt.Errorf("buffer %d: %w", i, err)
			}
			buf.data = data
		}
		if len(buf.data) < buf.ByteLength {
			return fmt.Errorf("buffer %d: %w", i, errBufferSizeMismatch)
		}
	}
	return nil
}

// readURI loads a data URI or a file relative to the document.
func (f *gltfFile) readURI(uri string) ([]byte, error) {
	if strings.HasPrefix(uri, "data:") {
		data, _, err := decodeDataURI(uri)
		return data, err
	}
	data, err := os.ReadFile(filepath.Join(f.baseDir, uri))
	if err != nil {
		return nil, fmt.Errorf("failed to load %q: %w", uri, err)
	}
	return data, nil
}

// decodeDataURI decodes data:[<mediatype>];base64,<data>.
//
// Returns:
//   - []byte: the decoded bytes
//   - string: the media type, possibly empty
//   - error: errInvalidDataURI or a base64 error
func decodeDataURI(uri string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", errInvalidDataURI
	}
	mime, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return nil, "", fmt.Errorf("%w: only base64 payloads are supported", errInvalidDataURI)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode base64: %w", err)
	}
	return data, mime, nil
}

// bufferView returns the bytes of a buffer view.
func (f *gltfFile) bufferView(index int) ([]byte, error) {
	if index < 0 || index >= len(f.doc.BufferViews) {
		return nil, fmt.Errorf("bufferView index %d out of range", index)
	}
	bv := &f.doc.BufferViews[index]
	if bv.Buffer < 0 || bv.Buffer >= len(f.doc.Buffers) {
		return nil, fmt.Errorf("buffer index %d out of range", bv.Buffer)
	}
	data := f.doc.Buffers[bv.Buffer].data
	end := bv.ByteOffset + bv.ByteLength
	if bv.ByteOffset < 0 || end > len(data) {
		return nil, fmt.Errorf("bufferView %d exceeds buffer bounds: offset=%d length=%d size=%d", index, bv.ByteOffset, bv.ByteLength, len(data))
	}
	return data[bv.ByteOffset:end], nil
}

// accessorElements validates an accessor and returns a function yielding the raw bytes of element i.
func (f *gltfFile) accessorElements(index int, wantType string) (*gltfAccessor, func(i int) []byte, error) {
	if index < 0 || index >= len(f.doc.Accessors) {
		return nil, nil, fmt.Errorf("accessor index %d out of range", index)
	}
	acc := &f.doc.Accessors[index]
	if acc.Type != wantType {
		return nil, nil, fmt.Errorf("accessor %d is %s, want %s", index, acc.Type, wantType)
	}
	if len(acc.Sparse) > 0 {
		return nil, nil, fmt.Errorf("accessor %d: sparse accessors are not supported", index)
	}
	if acc.BufferView == nil {
		return nil, nil, fmt.Errorf("accessor %d has no bufferView", index)
	}
	view, err := f.bufferView(*acc.BufferView)
	if err != nil {
		return nil, nil, fmt.Errorf("accessor %d: %w", index, err)
	}

	elemSize := componentSize(acc.ComponentType) * componentCount(acc.Type)
	if elemSize == 0 {
		return nil, nil, fmt.Errorf("accessor %d: unsupported component type %d", index, acc.ComponentType)
	}
	stride := elemSize
	if bv := f.doc.BufferViews[*acc.BufferView]; bv.ByteStride != nil && *bv.ByteStride > 0 {
		stride = *bv.ByteStride
	}
	if acc.Count > 0 && acc.ByteOffset+(acc.Count-1)*stride+elemSize > len(view) {
		return nil, nil, fmt.Errorf("accessor %d: %d elements overrun its bufferView", index, acc.Count)
	}
	return acc, func(i int) []byte {
		off := acc.ByteOffset + i*stride
		return view[off : off+elemSize]
	}, nil
}

// readFloats reads an accessor as float32 components, flattened. Normalized integer components are
// mapped into [0, 1] or [-1, 1] as the glTF specification defines.
//
// Parameters:
//   - index: the accessor index
//   - wantType: the required element type
//
// Returns:
//   - []float32: Count * components values
//   - error: a range, type or bounds error
func (f *gltfFile) readFloats(index int, wantType string) ([]float32, error) {
	acc, element, err := f.accessorElements(index, wantType)
	if err != nil {
		return nil, err
	}
	if acc.ComponentType != gltfComponentFloat && !acc.Normalized {
		return nil, fmt.Errorf("accessor %d: component type %d is neither float nor normalized", index, acc.ComponentType)
	}

	n := componentCount(acc.Type)
	size := componentSize(acc.ComponentType)
	out := make([]float32, 0, acc.Count*n)
	for i := 0; i < acc.Count; i++ {
		e := element(i)
		for c := 0; c < n; c++ {
			b := e[c*size:]
			var v float32
			switch acc.ComponentType {
			case gltfComponentFloat:
				v = math.Float32frombits(binary.LittleEndian.Uint32(b))
			case gltfComponentUnsignedByte:
				v = float32(b[0]) / 255
			case gltfComponentUnsignedShort:
				v = float32(binary.LittleEndian.Uint16(b)) / 65535
			case gltfComponentByte:
				v = max(float32(int8(b[0]))/127, -1)
			case gltfComponentShort:
				v = max(float32(int16(binary.LittleEndian.Uint16(b)))/32767, -1)
			default:
				return nil, fmt.Errorf("accessor %d: unsupported float component type %d", index, acc.ComponentType)
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// readUints reads an accessor of unsigned integer components, flattened.
func (f *gltfFile) readUints(index int, wantType string) ([]uint32, error) {
	acc, element, err := f.accessorElements(index, wantType)
	if err != nil {
		return nil, err
	}

	n := componentCount(acc.Type)
	out := make([]uint32, 0, acc.Count*n)
	for i := 0; i < acc.Count; i++ {
		e := element(i)
		for c := 0; c < n; c++ {
			switch acc.ComponentType {
			case gltfComponentUnsignedByte:
				out = append(out, uint32(e[c]))
			case gltfComponentUnsignedShort:
				out = append(out, uint32(binary.LittleEndian.Uint16(e[c*2:])))
			case gltfComponentUnsignedInt:
				out = append(out, binary.LittleEndian.Uint32(e[c*4:]))
			default:
				return nil, fmt.Errorf("accessor %d: unsupported integer component type %d", index, acc.ComponentType)
			}
		}
	}
	return out, nil
}

// readMat4s reads a MAT4 float accessor.
func (f *gltfFile) readMat4s(index int) ([][16]float32, error) {
	flat, err := f.readFloats(index, gltfTypeMat4)
	if err != nil {
		return nil, err
	}
	out := make([][16]float32, len(flat)/16)
	for i := range out {
		copy(out[i][:], flat[i*16:])
	}
	return out, nil
}

// image returns the encoded bytes of an embedded image, or the resolved path of an external one.
func (f *gltfFile) image(index int) (data []byte, path string, mime string, err error) {
	if index < 0 || index >= len(f.doc.Images) {
		return nil, "", "", fmt.Errorf("image index %d out of range", index)
	}
	img := &f.doc.Images[index]
	switch {
	case img.BufferView != nil:
		view, err := f.bufferView(*img.BufferView)
		if err != nil {
			return nil, "", "", fmt.Errorf("image %d: %w", index, err)
		}
		return bytes.Clone(view), "", img.MimeType, nil
	case strings.HasPrefix(img.URI, "data:"):
		data, mime, err := decodeDataURI(img.URI)
		if err != nil {
			return nil, "", "", fmt.Errorf("image %d: %w", index, err)
		}
		return data, "", mime, nil
	case img.URI != "":
		return nil, filepath.Join(f.baseDir, filepath.FromSlash(img.URI)), img.MimeType, nil
	default:
		return nil, "", "", fmt.Errorf("image %d has neither a URI nor a bufferView", index)
	}
}

func componentSize(componentType int) int {
	switch componentType {
	case gltfComponentByte, gltfComponentUnsignedByte:
		return 1
	case gltfComponentShort, gltfComponentUnsignedShort:
		return 2
	case gltfComponentUnsignedInt, gltfComponentFloat:
		return 4
	default:
		return 0
	}
}

func componentCount(accessorType string) int {
	switch accessorType {
	case gltfTypeScalar:
		return 1
	case gltfTypeVec2:
		return 2
	case gltfTypeVec3:
		return 3
	case gltfTypeVec4:
		return 4
	case gltfTypeMat4:
		return 16
	default:
		return 0
	}
}
