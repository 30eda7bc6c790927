package processor

import (
	"bufio"
	"os"

	"github.com/disintegration/imaging"

	"github.com/leeforge/imgcompress/errors"
	"github.com/leeforge/imgcompress/media/storage"
	"github.com/leeforge/imgcompress/utils"
)

// scratchQuality is the JPEG quality used to measure a candidate.
const scratchQuality = 100

// statFile measures a written candidate.
var statFile = os.Stat

// ArtifactPersister writes a candidate to a scratch slot and measures it on disk.
type ArtifactPersister struct{}

// Persist encodes img as JPEG into a fresh slot of dir and returns the slot
// path with the size reported by stat after the file is synced and closed.
func (ArtifactPersister) Persist(img *DecodedImage, dir *storage.ScratchDir) (string, ByteSize, error) {
	if img == nil || img.Pixels == nil {
		return "", 0, errors.NewInternal("persist called without pixels")
	}

	path := dir.NewSlot()
	if err := utils.RemoveIfExists(path); err != nil {
		return "", 0, errors.NewWriteFailed(path, err)
	}

	if err := writeJPEG(path, img); err != nil {
		_ = utils.RemoveIfExists(path)
		return "", 0, errors.NewWriteFailed(path, err)
	}

	info, err := statFile(path)
	if err != nil {
		_ = utils.RemoveIfExists(path)
		return "", 0, errors.NewStatFailed(path, err)
	}
	return path, ByteSize(info.Size()), nil
}

func writeJPEG(path string, img *DecodedImage) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	if err := imaging.Encode(w, img.Pixels, imaging.JPEG, imaging.JPEGQuality(scratchQuality)); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
