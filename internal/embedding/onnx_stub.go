//go:build !cgo
// +build !cgo

package embedding

import "errors"

// ErrONNXUnavailable is returned by NewONNXEmbedder in builds without CGO.
var ErrONNXUnavailable = errors.New("onnx embedding backend requires CGO; build with CGO_ENABLED=1 and onnxruntime, or use the hugot or mock backend")

// NewONNXEmbedder always fails without CGO; onnxruntime is a C library.
func NewONNXEmbedder(string, int, int) (Embedder, error) {
	return nil, ErrONNXUnavailable
}
