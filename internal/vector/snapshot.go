package vector

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/climateintel/greenhouse/internal/models"
)

// Snapshot layout: two co-located artifacts in the index directory. The n-th
// row of vectors.bin corresponds to the n-th element of chunks.json; both are
// written together via write-temp-then-rename so a crash mid-flush leaves the
// previous snapshot intact.
const (
	vectorsFile = "vectors.bin"
	chunksFile  = "chunks.json"
)

// flushLocked writes the snapshot. Caller holds the write lock.
// vectors.bin format: dimensions (uint32 LE), count (uint32 LE), then
// count*dimensions float32 LE values.
func (x *Index) flushLocked() error {
	if x.dir == "" {
		return nil
	}
	if err := os.MkdirAll(x.dir, 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	vecPath := filepath.Join(x.dir, vectorsFile)
	vecTmp := vecPath + ".tmp"
	if err := x.writeVectors(vecTmp); err != nil {
		return err
	}

	chunkPath := filepath.Join(x.dir, chunksFile)
	chunkTmp := chunkPath + ".tmp"
	data, err := json.Marshal(x.chunks)
	if err != nil {
		_ = os.Remove(vecTmp)
		return fmt.Errorf("marshal chunks: %w", err)
	}
	if err := os.WriteFile(chunkTmp, data, 0644); err != nil {
		_ = os.Remove(vecTmp)
		return fmt.Errorf("write chunks: %w", err)
	}

	if err := os.Rename(vecTmp, vecPath); err != nil {
		_ = os.Remove(vecTmp)
		_ = os.Remove(chunkTmp)
		return fmt.Errorf("replace vectors snapshot: %w", err)
	}
	if err := os.Rename(chunkTmp, chunkPath); err != nil {
		_ = os.Remove(chunkTmp)
		return fmt.Errorf("replace chunks snapshot: %w", err)
	}
	return nil
}

func (x *Index) writeVectors(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create vectors file: %w", err)
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, uint32(x.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(x.vectors))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i, vec := range x.vectors {
		if _, err := f.Write(float32SliceToBytes(vec)); err != nil {
			return fmt.Errorf("write vector %d: %w", i, err)
		}
	}
	return nil
}

// load reads the snapshot pair from the index directory. Called from NewIndex
// before the index is shared, so no locking. Absence of either artifact means
// no prior state; any read or consistency failure is treated as corruption:
// logged, and the index starts empty.
func (x *Index) load() {
	if x.dir == "" {
		return
	}
	vecPath := filepath.Join(x.dir, vectorsFile)
	chunkPath := filepath.Join(x.dir, chunksFile)
	if _, err := os.Stat(vecPath); os.IsNotExist(err) {
		return
	}
	if _, err := os.Stat(chunkPath); os.IsNotExist(err) {
		x.logger.Warn("vector snapshot present but chunk snapshot missing, starting empty",
			zap.String("dir", x.dir))
		return
	}

	vectors, err := x.readVectors(vecPath)
	if err != nil {
		x.logger.Warn("corrupt vector snapshot, starting empty",
			zap.String("path", vecPath), zap.Error(err))
		return
	}
	data, err := os.ReadFile(chunkPath)
	if err != nil {
		x.logger.Warn("unreadable chunk snapshot, starting empty",
			zap.String("path", chunkPath), zap.Error(err))
		return
	}
	var chunks []models.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		x.logger.Warn("corrupt chunk snapshot, starting empty",
			zap.String("path", chunkPath), zap.Error(err))
		return
	}
	if len(chunks) != len(vectors) {
		x.logger.Warn("snapshot misaligned, starting empty",
			zap.Int("vectors", len(vectors)), zap.Int("chunks", len(chunks)))
		return
	}

	x.vectors = vectors
	x.chunks = chunks
	x.logger.Info("loaded index snapshot",
		zap.String("dir", x.dir), zap.Int("entries", len(chunks)))
}

func (x *Index) readVectors(path string) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vectors file: %w", err)
	}
	defer f.Close()
	var dim, n uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != x.dimensions {
		return nil, fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, x.dimensions)
	}
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}
	vectors := make([][]float32, 0, n)
	buf := make([]byte, x.dimensions*4)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}
	return vectors, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
