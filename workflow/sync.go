package workflow

import "github.com/bhargavap21/tradeforge/strategy"

// syncParameters mirrors top-level strategy fields into the nested
// entry_conditions/exit_conditions parameter slots the backtester actually
// reads, resolving any divergence in favor of the top-level value (spec.md
// §4.7 "Parameter synchronization"). It runs after every refinement, since
// a generator call only ever edits the top-level fields it was asked about.
func syncParameters(spec *strategy.Spec) {
	syncEntryThreshold(spec)
	syncExitLevels(spec)
}

func syncEntryThreshold(spec *strategy.Spec) {
	top, ok := spec.EntryParameters["threshold"]
	if !ok {
		return
	}
	for i := range spec.EntryConditions {
		cond := &spec.EntryConditions[i]
		if cond.Kind != spec.EntrySignal {
			continue
		}
		if cond.Parameters == nil {
			cond.Parameters = map[string]any{}
		}
		cond.Parameters["threshold"] = top
	}
}

func syncExitLevels(spec *strategy.Spec) {
	for i := range spec.ExitConditions {
		cond := &spec.ExitConditions[i]
		if cond.Parameters == nil {
			cond.Parameters = map[string]any{}
		}
		if spec.Exit.TakeProfit != nil {
			cond.Parameters["take_profit"] = *spec.Exit.TakeProfit
		}
		if spec.Exit.StopLoss != nil {
			cond.Parameters["stop_loss"] = *spec.Exit.StopLoss
		}
	}
}
