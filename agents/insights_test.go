package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/bhargavap21/tradeforge/llm"
	"github.com/bhargavap21/tradeforge/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsights_Generate(t *testing.T) {
	client := &llm.LocalFuncClient{
		Respond: func(system, user string) (string, error) {
			return `{"config": {"charts": ["equity_curve", "drawdown"]}}`, nil
		},
	}
	ins := &Insights{Client: client}

	out, err := ins.Generate(context.Background(), &strategy.Spec{Name: "x"})
	require.NoError(t, err)
	assert.Equal(t, []any{"equity_curve", "drawdown"}, out.Config["charts"])
}

func TestInsights_Generate_DegradesOnFailure(t *testing.T) {
	client := &llm.LocalFuncClient{
		Respond: func(system, user string) (string, error) {
			return "", errors.New("upstream timeout")
		},
	}
	ins := &Insights{Client: client}

	out, err := ins.Generate(context.Background(), &strategy.Spec{Name: "x"})
	require.NoError(t, err)
	assert.Empty(t, out.Config)
}
