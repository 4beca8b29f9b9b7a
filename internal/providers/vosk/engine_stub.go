//go:build !vosk

package vosk

import "errors"

var errNoVosk = errors.New("offline recognition requires a build with -tags vosk and libvosk installed")

type stubEngine struct{}

// NewEngine returns an engine that fails every model load. Build with
// -tags vosk to link libvosk.
func NewEngine() Engine {
	return stubEngine{}
}

// Available reports whether the binary was built with libvosk.
func Available() bool { return false }

func (stubEngine) NewRecognizer(string, float64) (Recognizer, error) {
	return nil, errNoVosk
}
