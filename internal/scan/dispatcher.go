package scan

import (
	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"

	"github.com/veritag/veritag/pkg/metrics"
)

// Sinks are the caller-owned side effects for each disposition. Nil sinks
// are skipped. Duplicate suppression is the capture latch's job; Dispatch
// itself is safe to call repeatedly.
type Sinks struct {
	// Navigate opens the internal product page for the given id.
	Navigate func(productID string)
	// OpenExternal opens an arbitrary absolute URL in a new context.
	OpenExternal func(url string)
	// Announce surfaces raw text payloads to the user.
	Announce func(text string)
	// Invalid surfaces a recognized but malformed product link.
	Invalid func(raw string)
}

// Dispatcher classifies decoded payloads and fans them out to the sinks.
type Dispatcher struct {
	sinks Sinks
}

func NewDispatcher(sinks Sinks) *Dispatcher {
	return &Dispatcher{sinks: sinks}
}

// SubscribeBus attaches the dispatcher to capture decode events.
func (d *Dispatcher) SubscribeBus(bus EventBus.Bus) error {
	return bus.Subscribe(TopicDecoded, func(text string) {
		d.Dispatch(text)
	})
}

// Dispatch classifies text and invokes the matching sink.
func (d *Dispatcher) Dispatch(text string) Scan {
	result := Classify(text)
	metrics.IncrCounter("scan_" + string(result.Disposition))
	zap.L().Info("scan dispatched",
		zap.String("disposition", string(result.Disposition)),
		zap.String("product_id", result.ProductID))

	switch result.Disposition {
	case DispositionInternalProduct:
		if d.sinks.Navigate != nil {
			d.sinks.Navigate(result.ProductID)
		}
	case DispositionInvalidProduct:
		if d.sinks.Invalid != nil {
			d.sinks.Invalid(result.Raw)
		}
	case DispositionExternalLink:
		if d.sinks.OpenExternal != nil {
			d.sinks.OpenExternal(result.URL)
		}
	default:
		if d.sinks.Announce != nil {
			d.sinks.Announce(result.Raw)
		}
	}
	return result
}
