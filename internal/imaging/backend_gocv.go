//go:build gocv

package imaging

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Default is the backend used by the pipeline.
var Default Backend = CVBackend{}

// CVBackend implements Backend on top of OpenCV.
type CVBackend struct{}

func (CVBackend) Name() string { return "opencv" }

func (CVBackend) Load(path string) (*image.Gray, error) {
	mat := gocv.IMRead(path, gocv.IMReadGrayScale)
	if mat.Empty() {
		return nil, fmt.Errorf("failed to decode image %s", path)
	}
	defer mat.Close()
	return matToGray(mat)
}

func (CVBackend) Resize(img *image.Gray, w, h int) (*image.Gray, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid resize target %dx%d", w, h)
	}
	src, err := gocv.ImageGrayToMatGray(ToGray(img))
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Resize(src, &dst, image.Pt(w, h), 0, 0, gocv.InterpolationArea)
	return matToGray(dst)
}

func (CVBackend) Rotate(img *image.Gray, degrees float64) (*image.Gray, error) {
	src, err := gocv.ImageGrayToMatGray(ToGray(img))
	if err != nil {
		return nil, err
	}
	defer src.Close()

	w, h := src.Cols(), src.Rows()
	rotMat := gocv.GetRotationMatrix2D(image.Pt(w/2, h/2), degrees, 1.0)
	defer rotMat.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.WarpAffineWithParams(src, &dst, rotMat, image.Pt(w, h),
		gocv.InterpolationNearestNeighbor, gocv.BorderConstant, color.RGBA{})
	return matToGray(dst)
}

func matToGray(mat gocv.Mat) (*image.Gray, error) {
	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert mat: %w", err)
	}
	return ToGray(img), nil
}
