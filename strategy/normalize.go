package strategy

import (
	"math"
	"strings"
)

var validSignals = map[EntrySignal]bool{
	SignalRSI: true, SignalMACD: true, SignalSMA: true,
	SignalSentiment: true, SignalNews: true, SignalPrice: true, SignalCustom: true,
}

var validAllocations = map[Allocation]bool{
	AllocationEqual: true, AllocationSignalWeighted: true,
	AllocationDynamicTrending: true, AllocationMarketCap: true,
}

// Normalize turns an untrusted map (from an LLM response or a file on disk)
// into a validated Spec, per spec.md §4.1. It never panics; malformed
// numeric or enum fields are coerced with documented fallbacks, and the
// caller gets a ValidationError back only when a field cannot be made sense
// of at all (e.g. a completely absent name).
func Normalize(raw map[string]any) (*Spec, *ValidationError) {
	verr := newValidationError()

	name, _ := raw["name"].(string)
	if strings.TrimSpace(name) == "" {
		verr.Fields["name"] = "name is required"
	}

	spec := &Spec{
		Name:        name,
		Assets:      stringSlice(raw, "assets", "asset"),
		DataSources: stringSlice(raw, "data_sources"),
	}

	// Enum coercion with fall-through (spec.md §4.1).
	signal := EntrySignal(strings.ToLower(str(raw, "entry_signal")))
	if !validSignals[signal] {
		signal = SignalCustom
	}
	spec.EntrySignal = signal

	spec.EntryParameters = moveTopLevelEntryParameters(raw)

	spec.Risk = normalizeRisk(raw, verr)
	spec.Exit = normalizeExit(raw, verr)
	spec.EntryConditions = normalizeConditions(raw, "entry_conditions")
	spec.ExitConditions = normalizeConditions(raw, "exit_conditions")
	if v, ok := raw["prompt_variant"].(string); ok {
		spec.PromptVariant = v
	}

	if len(verr.Fields) > 0 {
		return spec, verr
	}
	return spec, nil
}

// moveTopLevelEntryParameters implements the "structural rewrite" rule: if
// the raw input places parameters at the top level of entry_conditions
// instead of nested under "parameters", move them (spec.md §4.1).
func moveTopLevelEntryParameters(raw map[string]any) map[string]any {
	ec, ok := raw["entry_conditions"].(map[string]any)
	if !ok {
		if ep, ok := raw["entry_parameters"].(map[string]any); ok {
			return ep
		}
		return map[string]any{}
	}
	if params, ok := ec["parameters"].(map[string]any); ok {
		return params
	}
	out := make(map[string]any, len(ec))
	for k, v := range ec {
		if k == "parameters" {
			continue
		}
		out[k] = v
	}
	return out
}

func normalizeRisk(raw map[string]any, verr *ValidationError) Risk {
	riskRaw, _ := raw["risk"].(map[string]any)
	r := Risk{PositionSize: 0.1, MaxPositions: 1, Allocation: AllocationEqual}

	if riskRaw == nil {
		return r
	}

	if v, ok := numeric(riskRaw["position_size"]); ok {
		r.PositionSize = clampFraction(v)
	}
	if v, ok := numeric(riskRaw["max_positions"]); ok {
		if v < 1 {
			v = 1
		}
		r.MaxPositions = int(v)
	}
	alloc := Allocation(strings.ToLower(str(riskRaw, "allocation")))
	if validAllocations[alloc] {
		r.Allocation = alloc
	}
	if r.PositionSize < 0 || r.PositionSize > 1 {
		verr.Fields["risk.position_size"] = "must normalize into [0,1]"
	}
	return r
}

func normalizeExit(raw map[string]any, verr *ValidationError) Exit {
	exitRaw, _ := raw["exit"].(map[string]any)
	e := Exit{TakeProfitPctShares: 1.0, StopLossPctShares: 1.0}
	if exitRaw == nil {
		return e
	}

	if v, ok := numeric(exitRaw["take_profit"]); ok {
		n := normalizePercentage(v)
		e.TakeProfit = &n
	}
	if v, ok := numeric(exitRaw["stop_loss"]); ok {
		n := normalizePercentage(math.Abs(v))
		e.StopLoss = &n
	}
	if v, ok := numeric(exitRaw["take_profit_pct_shares"]); ok {
		e.TakeProfitPctShares = clampFraction(v)
	}
	if v, ok := numeric(exitRaw["stop_loss_pct_shares"]); ok {
		e.StopLossPctShares = clampFraction(v)
	}
	if s, ok := exitRaw["custom_exit"].(string); ok {
		e.CustomExit = s
	}

	// Two-phase exit detection (spec.md §4.1).
	e.HasTrailingStop = e.StopLoss != nil && *e.StopLoss > 0 && e.TakeProfitPctShares < 1

	if e.TakeProfit != nil && (*e.TakeProfit < 0 || *e.TakeProfit > 1) {
		verr.Fields["exit.take_profit"] = "must normalize into [0,1]"
	}
	if e.StopLoss != nil && (*e.StopLoss < 0 || *e.StopLoss > 1) {
		verr.Fields["exit.stop_loss"] = "must normalize into [0,1]"
	}
	return e
}

func normalizeConditions(raw map[string]any, key string) []Condition {
	list, _ := raw[key].([]any)
	out := make([]Condition, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		kind := EntrySignal(strings.ToLower(str(m, "kind")))
		if !validSignals[kind] {
			kind = SignalCustom
		}
		params, _ := m["parameters"].(map[string]any)
		if params == nil {
			params = map[string]any{}
			for k, v := range m {
				if k != "kind" {
					params[k] = v
				}
			}
		}
		out = append(out, Condition{Kind: kind, Parameters: params})
	}
	return out
}

// normalizePercentage implements "a field in the exit group with |v| > 1 is
// divided by 100" (spec.md §4.1, §8 "For any raw input with stop_loss = -10,
// the normalized value is 0.10").
func normalizePercentage(v float64) float64 {
	if math.Abs(v) > 1 {
		v = v / 100
	}
	return v
}

func clampFraction(v float64) float64 {
	if v > 1 {
		v = v / 100
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v
}

func str(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func stringSlice(raw map[string]any, keys ...string) []string {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case []string:
			return v
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		case string:
			if v != "" {
				return []string{v}
			}
		}
	}
	return nil
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
