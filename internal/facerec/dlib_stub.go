//go:build !dlib

package facerec

import "errors"

// NewDlib reports that the binary was built without dlib; rebuild with -tags dlib.
func NewDlib(modelsDir string) (Encoder, error) {
	return nil, errors.New("face encoder dlib is not available: build with -tags dlib")
}
