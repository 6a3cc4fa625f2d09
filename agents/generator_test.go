package agents

import (
	"context"
	"testing"

	"github.com/bhargavap21/tradeforge/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_Generate_ParsesStrategy(t *testing.T) {
	client := &llm.LocalFuncClient{
		Respond: func(system, user string) (string, error) {
			return `{
				"strategy": {
					"name": "RSI dip buyer",
					"assets": ["AAPL"],
					"entry_signal": "rsi",
					"entry_parameters": {"threshold": 30, "comparison": "below"},
					"exit": {"take_profit": 10, "stop_loss": -5},
					"risk": {"position_size": 0.1, "max_positions": 5, "allocation": "equal"}
				},
				"changes_made": ["initial strategy"]
			}`, nil
		},
	}
	gen := &Generator{Client: client}

	out, err := gen.Generate(context.Background(), GeneratorInput{
		UserQuery: "buy AAPL when RSI is low",
		Iteration: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "RSI dip buyer", out.Spec.Name)
	assert.Equal(t, []string{"AAPL"}, out.Spec.Assets)
	assert.Equal(t, []string{"initial strategy"}, out.ChangesMade)
}

func TestGenerator_Generate_InvalidStrategyFails(t *testing.T) {
	client := &llm.LocalFuncClient{
		Respond: func(system, user string) (string, error) {
			return `{"strategy": {"assets": ["AAPL"]}, "changes_made": []}`, nil
		},
	}
	gen := &Generator{Client: client}

	_, err := gen.Generate(context.Background(), GeneratorInput{UserQuery: "x", Iteration: 1})
	assert.Error(t, err)
}
