//go:build !((linux && cgo) || windows || darwin)

package audio

import (
	"errors"
	"net/http"

	"nufang/internal/player"

	"github.com/sirupsen/logrus"
)

// SpeakerAvailable indicates whether sound output is supported in this build.
// Sound output requires cgo on linux for the native sound libraries.
const SpeakerAvailable = false

// ErrNoSpeaker is returned when the build has no sound output
var ErrNoSpeaker = errors.New("sound output not available in this build")

func openSpeaker(_ *http.Client, _ *logrus.Logger) (player.Output, error) {
	return nil, ErrNoSpeaker
}
