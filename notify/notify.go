// Package notify diffs successive analysis outputs against the wallet's
// stored fingerprint state and forwards only new, sufficiently severe
// findings to the notification sink.
package notify

import (
	"context"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/log"

	"github.com/chainsentry/chainsentry/types"
)

// Alert is one candidate notification produced by an analyzer.
type Alert struct {
	Fingerprint string
	Severity    types.Severity
	Title       string
	Body        string
}

// Sink delivers a rendered alert to a user. Implementations are stateless;
// delivery failures are logged by the notifier and never retried.
type Sink interface {
	Send(ctx context.Context, userID, text string) error
}

// Notifier applies the new-and-severe filter before handing alerts to the
// sink.
type Notifier struct {
	sink      Sink
	threshold types.Severity
}

// New builds a notifier with the given severity threshold.
func New(sink Sink, threshold types.Severity) *Notifier {
	return &Notifier{sink: sink, threshold: threshold}
}

// NewFingerprints returns the fingerprints present in current but not in
// previous.
func NewFingerprints(previous, current []string) mapset.Set[string] {
	return mapset.NewSet(current...).Difference(mapset.NewSet(previous...))
}

// Publish emits every alert that is both new against the previous
// fingerprint set and at or above the severity threshold. Returns the number
// of alerts handed to the sink. Sink failures never block the pipeline.
func (n *Notifier) Publish(ctx context.Context, userID string, previous []string, alerts []Alert) int {
	current := make([]string, 0, len(alerts))
	for _, a := range alerts {
		current = append(current, a.Fingerprint)
	}
	fresh := NewFingerprints(previous, current)

	sent := 0
	for _, a := range alerts {
		if !fresh.Contains(a.Fingerprint) {
			continue
		}
		if !a.Severity.AtLeast(n.threshold) {
			continue
		}
		text := a.Title
		if a.Body != "" {
			text += "\n" + a.Body
		}
		if err := n.sink.Send(ctx, userID, text); err != nil {
			log.Warn("Alert delivery failed", "user", userID, "title", a.Title, "err", err)
			continue
		}
		sent++
	}
	return sent
}
