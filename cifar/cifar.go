// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package cifar downloads and loads the CIFAR-10 dataset
// (https://www.cs.toronto.edu/~kriz/cifar.html) into tensors, and wraps them
// into in-memory datasets usable by train.Trainer.
package cifar

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/ml/data"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

const (
	DownloadURL     = "https://www.cs.toronto.edu/~kriz/cifar-10-binary.tar.gz"
	tarName         = "cifar-10-binary.tar.gz"
	tarHash         = "c4a38c50a1bc5f3a1c5537f2155ab9d68f9f25eb1ed8d9ddda3db29a59bca1dd"
	batchesDir      = "cifar-10-batches-bin"
	examplesPerFile = 10000

	// NumTrainExamples and NumTestExamples are the sizes of the canonical
	// train/test partitions.
	NumTrainExamples = 50000
	NumTestExamples  = 10000

	// NumClasses is the number of CIFAR-10 labels.
	NumClasses = 10
)

// Height, Width and Depth are the dimensions of the images.
const (
	Height int = 32
	Width  int = 32
	Depth  int = 3
)

// Labels are the class names, indexed by label value.
var Labels = []string{
	"airplane", "automobile", "bird", "cat", "deer",
	"dog", "frog", "horse", "ship", "truck"}

const imageSizeBytes = Height * Width * Depth

// Download fetches and unpacks the CIFAR-10 binary archive under baseDir, if
// not there already.
func Download(baseDir string) error {
	baseDir = data.ReplaceTildeInDir(baseDir)
	return data.DownloadAndUntarIfMissing(DownloadURL, baseDir, tarName, batchesDir, tarHash)
}

// Partition selects the train or test examples.
type Partition int

const (
	Train Partition = iota
	Test
)

// ImagesAndLabels holds one partition of the dataset: images shaped
// [numExamples, 32, 32, 3] of Float32 (in [0, 1]) and labels shaped
// [numExamples, 1] of Int64.
type ImagesAndLabels struct {
	Images, Labels *tensors.Tensor
}

// Load reads one partition of CIFAR-10 from the unpacked archive under baseDir
// (see Download).
//
// The train partition is the five data batches (50000 examples); the test
// partition is the test batch (10000 examples).
func Load(baseDir string, partition Partition) (ImagesAndLabels, error) {
	baseDir = data.ReplaceTildeInDir(baseDir)
	files := []string{"data_batch_1.bin", "data_batch_2.bin", "data_batch_3.bin",
		"data_batch_4.bin", "data_batch_5.bin"}
	numExamples := NumTrainExamples
	if partition == Test {
		files = []string{"test_batch.bin"}
		numExamples = NumTestExamples
	}

	images := tensors.FromShape(shapes.Make(dtypes.Float32, numExamples, Height, Width, Depth))
	labels := tensors.FromShape(shapes.Make(dtypes.Int64, numExamples, 1))
	var err error
	tensors.MutableFlatData[int64](labels, func(labelsData []int64) {
		tensors.MutableFlatData[float32](images, func(imagesData []float32) {
			exampleIdx := 0
			for _, fileName := range files {
				filePath := path.Join(baseDir, batchesDir, fileName)
				if err = loadBatchFile(filePath, imagesData, labelsData, &exampleIdx); err != nil {
					return
				}
			}
			if err == nil && exampleIdx != numExamples {
				err = errors.Errorf("cifar: read %d examples, want %d", exampleIdx, numExamples)
			}
		})
	})
	if err != nil {
		images.FinalizeAll()
		labels.FinalizeAll()
		return ImagesAndLabels{}, err
	}
	return ImagesAndLabels{Images: images, Labels: labels}, nil
}

// loadBatchFile parses one CIFAR-10 binary batch file: per example one label
// byte followed by 3072 image bytes in planar RGB, row-major. Images are
// transposed to channels-last and scaled to [0, 1].
func loadBatchFile(filePath string, imagesData []float32, labelsData []int64, exampleIdx *int) error {
	f, err := os.Open(filePath)
	if err != nil {
		return errors.Wrapf(err, "cifar: opening data file %q", filePath)
	}
	defer func() { _ = f.Close() }()

	var record [imageSizeBytes + 1]byte
	for inFileIdx := 0; inFileIdx < examplesPerFile; inFileIdx++ {
		if _, err := io.ReadFull(f, record[:]); err != nil {
			return errors.Wrapf(err, "cifar: reading example %d from %q", inFileIdx, filePath)
		}
		labelsData[*exampleIdx] = int64(record[0])
		image := record[1:]
		pos := *exampleIdx * imageSizeBytes
		for h := 0; h < Height; h++ {
			for w := 0; w < Width; w++ {
				for d := 0; d < Depth; d++ {
					imagesData[pos] = float32(image[d*(Height*Width)+h*Width+w]) / 255
					pos++
				}
			}
		}
		*exampleIdx++
	}
	return nil
}

// NewDataset downloads (if needed) and loads one partition of CIFAR-10 and
// returns it as an InMemoryDataset, usable by train.Trainer methods.
func NewDataset(backend backends.Backend, name, baseDir string, partition Partition) (*data.InMemoryDataset, error) {
	if err := Download(baseDir); err != nil {
		return nil, errors.WithMessage(err, "downloading CIFAR-10")
	}
	imagesAndLabels, err := Load(baseDir, partition)
	if err != nil {
		return nil, err
	}
	ds, err := data.InMemoryFromData(backend, name,
		[]any{imagesAndLabels.Images}, []any{imagesAndLabels.Labels})
	if err != nil {
		return nil, errors.WithMessagef(err, "building in-memory dataset %q", name)
	}
	return ds, nil
}

// AssertDownloaded returns a descriptive error if the dataset is not present
// under baseDir. Used by tests that must not download.
func AssertDownloaded(baseDir string) error {
	baseDir = data.ReplaceTildeInDir(baseDir)
	p := path.Join(baseDir, batchesDir)
	if !data.FileExists(p) {
		return errors.Errorf("CIFAR-10 not found in %q -- run the trainer or call cifar.Download first", p)
	}
	return nil
}

// String implements fmt.Stringer.
func (p Partition) String() string {
	switch p {
	case Train:
		return "train"
	case Test:
		return "test"
	default:
		return fmt.Sprintf("Partition(%d)", int(p))
	}
}
