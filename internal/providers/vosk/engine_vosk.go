//go:build vosk

package vosk

import (
	"errors"
	"sync"

	voskapi "github.com/alphacep/vosk-api/go"
)

// NativeEngine loads Vosk models through libvosk. Models stay loaded for
// the life of the engine.
type NativeEngine struct {
	mu     sync.Mutex
	models map[string]*voskapi.VoskModel
}

// NewEngine returns the libvosk engine.
func NewEngine() Engine {
	voskapi.SetLogLevel(-1)
	return &NativeEngine{models: make(map[string]*voskapi.VoskModel)}
}

// Available reports whether the binary was built with libvosk.
func Available() bool { return true }

func (e *NativeEngine) NewRecognizer(modelPath string, sampleRate float64) (Recognizer, error) {
	model, err := e.model(modelPath)
	if err != nil {
		return nil, err
	}
	rec, err := voskapi.NewRecognizer(model, sampleRate)
	if err != nil {
		return nil, err
	}
	return &nativeRecognizer{rec: rec}, nil
}

// Close frees every loaded model.
func (e *NativeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for path, model := range e.models {
		model.Free()
		delete(e.models, path)
	}
	return nil
}

func (e *NativeEngine) model(path string) (*voskapi.VoskModel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if model, ok := e.models[path]; ok {
		return model, nil
	}
	model, err := voskapi.NewModel(path)
	if err != nil {
		return nil, err
	}
	e.models[path] = model
	return model, nil
}

type nativeRecognizer struct {
	rec *voskapi.VoskRecognizer
}

func (r *nativeRecognizer) AcceptWaveform(pcm []byte) (bool, error) {
	switch r.rec.AcceptWaveform(pcm) {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, errors.New("vosk rejected waveform")
	}
}

func (r *nativeRecognizer) Result() string      { return r.rec.Result() }
func (r *nativeRecognizer) FinalResult() string { return r.rec.FinalResult() }
func (r *nativeRecognizer) Close()              { r.rec.Free() }
