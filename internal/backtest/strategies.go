// Package backtest runs trading strategies against historical price
// series and computes performance metrics.
package backtest

import (
	"math"
	"time"

	"github.com/portfolio-sentinel/internal/models"
)

const annualizationFactor = 252.0

// curvePoint pairs a timestamp with an equity value during simulation
type curvePoint struct {
	ts     time.Time
	equity float64
}

// backtestMA simulates a long-or-flat moving average crossover. The
// position is long while the short MA sits above the long MA; returns
// apply with the position held at the previous step.
func backtestMA(prices []models.PricePoint, shortWindow, longWindow int) ([]curvePoint, map[string]interface{}) {
	equity := 1.0
	prevPosition := 0.0
	window := make([]float64, 0, longWindow)
	curve := make([]curvePoint, 0, len(prices))

	for _, point := range prices {
		window = append(window, point.Price)
		if len(window) > longWindow {
			window = window[1:]
		}

		shortMA := point.Price
		if len(window) >= shortWindow {
			sum := 0.0
			for i := len(window) - shortWindow; i < len(window); i++ {
				sum += window[i]
			}
			shortMA = sum / float64(shortWindow)
		}

		longSum := 0.0
		for _, p := range window {
			longSum += p
		}
		longMA := longSum / float64(len(window))

		position := 0.0
		if shortMA > longMA {
			position = 1.0
		}

		prevIdx := len(window) - 2
		if prevIdx < 0 {
			prevIdx = 0
		}
		prevPrice := window[prevIdx]
		ret := (point.Price - prevPrice) / prevPrice
		equity *= 1.0 + ret*prevPosition

		prevPosition = position
		curve = append(curve, curvePoint{ts: point.Timestamp, equity: equity})
	}

	metrics := map[string]interface{}{
		"type":         "ma_cross",
		"short_window": shortWindow,
		"long_window":  longWindow,
	}
	return curve, buildMetrics(curve, metrics)
}

// backtestVolatility computes the annualized volatility of the trailing
// lookback returns. The equity curve compounds the final observed return,
// matching the reference behavior.
func backtestVolatility(prices []models.PricePoint, lookback int) ([]curvePoint, map[string]interface{}) {
	returns := make([]float64, 0, len(prices))
	for i := 1; i < len(prices); i++ {
		returns = append(returns, (prices[i].Price-prices[i-1].Price)/prices[i-1].Price)
	}

	vol := 0.0
	if len(returns) >= lookback {
		slice := returns[len(returns)-lookback:]
		vol = math.Sqrt(populationVariance(slice)) * math.Sqrt(annualizationFactor)
	}

	lastReturn := 0.0
	if len(returns) > 0 {
		lastReturn = returns[len(returns)-1]
	}

	equity := 1.0
	curve := make([]curvePoint, 0, len(prices))
	for _, point := range prices {
		if len(returns) > 0 {
			equity *= 1.0 + lastReturn
		}
		curve = append(curve, curvePoint{ts: point.Timestamp, equity: equity})
	}

	metrics := map[string]interface{}{
		"type":           "volatility",
		"lookback":       lookback,
		"annualized_vol": vol,
	}
	return curve, buildMetrics(curve, metrics)
}

// backtestCorrelation measures the Pearson correlation between the series
// and itself shifted by lag. It holds no position, so the curve is flat.
func backtestCorrelation(prices []models.PricePoint, lag int) ([]curvePoint, map[string]interface{}) {
	var x, y []float64
	for i := 0; i+lag < len(prices); i++ {
		x = append(x, prices[i+lag].Price)
		y = append(y, prices[i].Price)
	}
	corr := correlation(x, y)

	curve := make([]curvePoint, 0, len(prices))
	for _, point := range prices {
		curve = append(curve, curvePoint{ts: point.Timestamp, equity: 1.0})
	}

	metrics := map[string]interface{}{
		"type":        "correlation",
		"lag":         lag,
		"correlation": corr,
	}
	return curve, buildMetrics(curve, metrics)
}

// correlation computes the Pearson coefficient, 0 for degenerate input
func correlation(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return 0.0
	}

	meanX := mean(x)
	meanY := mean(y)

	var num, denX, denY float64
	for i := range x {
		dx := x[i] - meanX
		dy := y[i] - meanY
		num += dx * dy
		denX += dx * dx
		denY += dy * dy
	}

	if denX == 0 || denY == 0 {
		return 0.0
	}
	return num / (math.Sqrt(denX) * math.Sqrt(denY))
}

// buildMetrics adds performance figures computed from the equity curve to
// the strategy-specific base metrics.
func buildMetrics(curve []curvePoint, metrics map[string]interface{}) map[string]interface{} {
	if len(curve) == 0 {
		return metrics
	}

	var returns []float64
	for i := 1; i < len(curve); i++ {
		if curve[i-1].equity > 0 {
			returns = append(returns, curve[i].equity/curve[i-1].equity-1.0)
		}
	}

	start := curve[0].equity
	end := curve[len(curve)-1].equity

	totalReturn := 0.0
	if start > 0 {
		totalReturn = end/start - 1.0
	}

	maxDrawdown := 0.0
	peak := curve[0].equity
	for _, p := range curve {
		if p.equity > peak {
			peak = p.equity
		}
		if peak > 0 {
			if dd := p.equity/peak - 1.0; dd < maxDrawdown {
				maxDrawdown = dd
			}
		}
	}

	vol := 0.0
	sharpe := 0.0
	if len(returns) > 0 {
		vol = math.Sqrt(populationVariance(returns)) * math.Sqrt(annualizationFactor)
		if vol > 0 {
			sharpe = mean(returns) * math.Sqrt(annualizationFactor) / vol
		}
	}

	daysSpan := curve[len(curve)-1].ts.Sub(curve[0].ts).Hours() / 24
	daysSpan = math.Floor(daysSpan)
	if daysSpan < 1 {
		daysSpan = 1
	}
	cagr := 0.0
	if start > 0 {
		cagr = math.Pow(end/start, 365.0/daysSpan) - 1.0
	}

	metrics["total_return"] = totalReturn
	metrics["max_drawdown"] = maxDrawdown
	metrics["annualized_vol"] = vol
	metrics["sharpe"] = sharpe
	metrics["cagr"] = cagr
	return metrics
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func populationVariance(values []float64) float64 {
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(values))
}
