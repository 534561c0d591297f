package audio

import (
	"fmt"
	"net/http"
	"time"

	"nufang/internal/player"

	"github.com/sirupsen/logrus"
)

// Output kinds accepted by New
const (
	KindSpeaker = "speaker"
	KindSilent  = "silent"
	KindAuto    = "auto"
)

// New builds the output named by kind. "auto" tries the speaker and falls
// back to the silent clock when no sound device is usable.
func New(kind string, fetchTimeout time.Duration, logger *logrus.Logger) (player.Output, error) {
	client := &http.Client{Timeout: fetchTimeout}

	switch kind {
	case KindSilent:
		return NewSilent(client, logger), nil
	case KindSpeaker:
		return openSpeaker(client, logger)
	case KindAuto, "":
		sp, err := openSpeaker(client, logger)
		if err != nil {
			logger.WithError(err).Warn("Sound output unavailable, using silent output")
			return NewSilent(client, logger), nil
		}
		return sp, nil
	default:
		return nil, fmt.Errorf("unknown output kind %q", kind)
	}
}
