package browser

import (
	"github.com/cantalupo555/backoffice-csv-exporter/internal/capture"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/download"
)

// Channels returns fresh observers for every delivery channel of the tab.
// The download channel is only present after Prepare was given a download
// directory.
func (b *Browser) Channels() capture.Channels {
	var observers []capture.Observer
	if b.downloads != nil {
		observers = append(observers, download.NewObserver(b.ctx, b.downloads, b.logger))
	}
	observers = append(observers, popupObserver{b: b}, networkObserver{b: b})
	return capture.Channels{Observers: observers, Log: inPageLog{b: b}}
}
