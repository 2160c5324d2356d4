package pipeline

import (
	"github.com/logsift/logsift/internal/config"
	"github.com/logsift/logsift/internal/model"
	"github.com/logsift/logsift/internal/report"
	"github.com/logsift/logsift/internal/tokenizer"
)

// streamProcessor scores the lines of one source and materializes anomaly
// contexts with a sliding window.
//
// Merge policy: an anomaly within ContextDistance lines of the previous one
// extends the open context, the nominal lines between them becoming the Gap
// of the earlier anomaly. A line consumed as after-context of a closed
// window is never reused as before-context of the next one.
type streamProcessor struct {
	cfg *config.TargetConfig
	ti  *model.TrainedIndex

	// seen holds the skeletons of emitted anomalies for duplicate
	// suppression (disabled by keep_duplicates).
	seen map[string]struct{}

	contexts []report.AnomalyContext
	open     *report.AnomalyContext
	lastLine int
	pending  []string
	ring     []string
}

func newStreamProcessor(cfg *config.TargetConfig, ti *model.TrainedIndex) *streamProcessor {
	return &streamProcessor{
		cfg:  cfg,
		ti:   ti,
		seen: make(map[string]struct{}),
	}
}

// process classifies one line and advances the window state.
func (sp *streamProcessor) process(number int, offset int64, raw []byte) {
	text := string(raw)
	if sp.cfg.IsIgnoredLine(text) {
		return
	}

	tokens := tokenizer.Tokenize(raw)
	isAnomaly := false
	var distance float32
	if len(tokens) > 0 {
		distance = sp.ti.Index.Distance(tokens)
		if distance >= sp.cfg.Threshold {
			isAnomaly = true
			if !sp.cfg.KeepDuplicates {
				key := tokenizer.Render(tokens)
				if _, dup := sp.seen[key]; dup {
					isAnomaly = false
				} else {
					sp.seen[key] = struct{}{}
				}
			}
		}
	}

	if isAnomaly {
		sp.addAnomaly(report.Anomaly{
			Distance: distance,
			Line:     number,
			Offset:   offset,
			Text:     text,
		})
		return
	}
	sp.addNominal(number, text)
}

func (sp *streamProcessor) addAnomaly(anomaly report.Anomaly) {
	if sp.open != nil {
		if anomaly.Line-sp.lastLine <= sp.cfg.ContextDistance {
			// Merge into the open window; the gap lines attach to the
			// previous anomaly.
			last := &sp.open.Anomalies[len(sp.open.Anomalies)-1]
			last.Gap = sp.pending
			sp.pending = nil
			sp.open.Anomalies = append(sp.open.Anomalies, anomaly)
			sp.lastLine = anomaly.Line
			return
		}
		sp.closeOpen()
	}
	sp.open = &report.AnomalyContext{
		Before:    sp.ring,
		Anomalies: []report.Anomaly{anomaly},
	}
	sp.ring = nil
	sp.lastLine = anomaly.Line
}

func (sp *streamProcessor) addNominal(number int, text string) {
	if sp.open == nil {
		sp.ring = append(sp.ring, text)
		if len(sp.ring) > sp.cfg.BeforeContext {
			sp.ring = sp.ring[1:]
		}
		return
	}
	sp.pending = append(sp.pending, text)
	if number-sp.lastLine > sp.cfg.ContextDistance {
		// No future anomaly can merge anymore.
		sp.closeOpen()
	}
}

func (sp *streamProcessor) closeOpen() {
	after := min(sp.cfg.AfterContext, len(sp.pending))
	sp.open.After = sp.pending[:after]
	sp.contexts = append(sp.contexts, *sp.open)
	sp.open = nil
	for _, line := range sp.pending[after:] {
		sp.ring = append(sp.ring, line)
		if len(sp.ring) > sp.cfg.BeforeContext {
			sp.ring = sp.ring[1:]
		}
	}
	sp.pending = nil
}

// finish flushes the open window and returns the contexts in source order.
func (sp *streamProcessor) finish() []report.AnomalyContext {
	if sp.open != nil {
		sp.closeOpen()
	}
	return sp.contexts
}
