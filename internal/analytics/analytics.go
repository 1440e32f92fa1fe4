// Package analytics provides technical indicator calculations over observed
// price series.
//
// All functions are pure and operate on newest-first slices, matching the
// order returned by the history store. When a series holds fewer valid points
// than an indicator requires, the indicator reports unavailability instead of
// computing a partial result.
package analytics

import (
	"math"

	"github.com/market-tracker/internal/types"
)

// Default indicator periods.
const (
	DefaultRSIPeriod        = 14
	DefaultVolPeriod        = 20
	DefaultBollingerPeriod  = 20
	DefaultBollingerK       = 2.0
	DefaultMACDFastPeriod   = 12
	DefaultMACDSlowPeriod   = 26
	DefaultPredictionWindow = 10

	// Trading days per year, used to annualize volatility.
	tradingDaysPerYear = 252

	smoothingAlpha = 0.3

	overboughtRSI  = 70.0
	oversoldRSI    = 30.0
	trendThreshold = 5.0 // percent
	highVolatility = 20.0
)

// window returns the first n valid (non-NaN, finite) prices in newest-first
// order, and whether n valid prices were found.
func window(prices []float64, n int) ([]float64, bool) {
	if n <= 0 {
		return nil, false
	}
	out := make([]float64, 0, n)
	for _, p := range prices {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			continue
		}
		out = append(out, p)
		if len(out) == n {
			return out, true
		}
	}
	return out, false
}

// chronological reverses a newest-first slice into oldest-first order.
func chronological(newestFirst []float64) []float64 {
	out := make([]float64, len(newestFirst))
	for i, p := range newestFirst {
		out[len(newestFirst)-1-i] = p
	}
	return out
}

// SMA returns the simple moving average over the most recent period valid
// prices. The second return value is false when fewer than period valid
// prices exist.
func SMA(prices []float64, period int) (float64, bool) {
	w, ok := window(prices, period)
	if !ok {
		return 0, false
	}

	sum := 0.0
	for _, p := range w {
		sum += p
	}
	return sum / float64(period), true
}

// EMA returns the exponential moving average over the most recent period
// prices, seeded with the oldest value in the window and iterated forward in
// chronological order with smoothing factor 2/(period+1).
func EMA(prices []float64, period int) (float64, bool) {
	w, ok := window(prices, period)
	if !ok {
		return 0, false
	}

	chron := chronological(w)
	alpha := 2.0 / (float64(period) + 1.0)

	ema := chron[0]
	for _, p := range chron[1:] {
		ema = p*alpha + ema*(1-alpha)
	}
	return ema, true
}

// RSI returns the Relative Strength Index over period consecutive
// transitions. Requires period+1 valid prices. Returns 100 when the window
// contains no losses and 0 when it contains no gains.
func RSI(prices []float64, period int) (float64, bool) {
	w, ok := window(prices, period+1)
	if !ok {
		return 0, false
	}

	chron := chronological(w)

	var gains, losses float64
	for i := 1; i < len(chron); i++ {
		delta := chron[i] - chron[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		return 100, true
	}

	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// Volatility returns the annualized standard deviation of simple returns
// over the most recent period transitions, expressed as a percentage.
func Volatility(prices []float64, period int) (float64, bool) {
	w, ok := window(prices, period+1)
	if !ok {
		return 0, false
	}

	returns := simpleReturns(chronological(w))
	if len(returns) == 0 {
		return 0, false
	}

	return stdev(returns) * math.Sqrt(tradingDaysPerYear) * 100, true
}

// Bands holds Bollinger band values.
type Bands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// BollingerBands returns bands k population standard deviations around the
// period SMA.
func BollingerBands(prices []float64, period int, k float64) (Bands, bool) {
	w, ok := window(prices, period)
	if !ok {
		return Bands{}, false
	}

	sum := 0.0
	for _, p := range w {
		sum += p
	}
	mean := sum / float64(period)

	sigma := stdev(w)

	return Bands{
		Upper:  mean + k*sigma,
		Middle: mean,
		Lower:  mean - k*sigma,
	}, true
}

// MACDResult holds the MACD line and its (unavailable) signal line.
type MACDResult struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
	// SignalAvailable is always false: a true signal line needs an EMA over
	// the MACD's own history, which a single price series cannot provide.
	SignalAvailable bool `json:"signalAvailable"`
}

// MACD returns fastEMA minus slowEMA over the most recent prices. The signal
// component is reported as unavailable rather than approximated.
func MACD(prices []float64, fast, slow int) (MACDResult, bool) {
	fastEMA, okFast := EMA(prices, fast)
	slowEMA, okSlow := EMA(prices, slow)
	if !okFast || !okSlow {
		return MACDResult{}, false
	}

	line := fastEMA - slowEMA
	return MACDResult{
		MACD:            line,
		Signal:          0,
		Histogram:       line,
		SignalAvailable: false,
	}, true
}

// Prediction is a naive next-price estimate.
type Prediction struct {
	Value      float64                `json:"value"`
	Confidence float64                `json:"confidence"`
	Method     types.PredictionMethod `json:"method"`
}

// PredictNext estimates the next price using the requested method over the
// last up-to-10 observed prices. Requires at least 3 valid prices.
func PredictNext(prices []float64, method types.PredictionMethod) (Prediction, bool) {
	w, ok := window(prices, DefaultPredictionWindow)
	if !ok {
		// Fewer than the full window is fine as long as a trend exists.
		if len(w) < 3 {
			return Prediction{}, false
		}
	}

	chron := chronological(w)

	switch method {
	case types.PredictLinear:
		return predictLinear(chron), true
	case types.PredictMovingAverage:
		return predictMovingAverage(chron), true
	case types.PredictExpSmoothing:
		return predictExpSmoothing(chron), true
	default:
		return Prediction{}, false
	}
}

// predictLinear fits a least-squares line and evaluates it at the next index.
// Confidence is the fit quality minus a volatility penalty, clamped to
// [10, 95].
func predictLinear(chron []float64) Prediction {
	n := float64(len(chron))

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range chron {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	var slope, intercept float64
	if denom != 0 {
		slope = (n*sumXY - sumX*sumY) / denom
		intercept = (sumY - slope*sumX) / n
	} else {
		intercept = sumY / n
	}

	value := slope*n + intercept
	if value < 0 {
		value = 0
	}

	confidence := clamp(rSquared(chron, slope, intercept)*100-returnsVolatilityPct(chron), 10, 95)

	return Prediction{Value: value, Confidence: confidence, Method: types.PredictLinear}
}

// predictMovingAverage extrapolates the latest price by the ratio of a short
// SMA to a long SMA over the window.
func predictMovingAverage(chron []float64) Prediction {
	last := chron[len(chron)-1]

	shortN := 3
	if len(chron) < shortN {
		shortN = len(chron)
	}

	shortSum := 0.0
	for _, p := range chron[len(chron)-shortN:] {
		shortSum += p
	}
	shortSMA := shortSum / float64(shortN)

	longSum := 0.0
	for _, p := range chron {
		longSum += p
	}
	longSMA := longSum / float64(len(chron))

	value := last
	if longSMA != 0 {
		value = last * (shortSMA / longSMA)
	}
	if value < 0 {
		value = 0
	}

	return Prediction{Value: value, Confidence: 60, Method: types.PredictMovingAverage}
}

// predictExpSmoothing applies single-parameter exponential smoothing with
// alpha 0.3 and returns the final smoothed level.
func predictExpSmoothing(chron []float64) Prediction {
	s := chron[0]
	for _, p := range chron[1:] {
		s = smoothingAlpha*p + (1-smoothingAlpha)*s
	}
	if s < 0 {
		s = 0
	}

	return Prediction{Value: s, Confidence: 55, Method: types.PredictExpSmoothing}
}

// SentimentResult classifies the momentum of a series.
type SentimentResult struct {
	Label      types.SentimentLabel `json:"label"`
	Confidence float64              `json:"confidence"`
	RSI        float64              `json:"rsi,omitempty"`
	TrendPct   float64              `json:"trendPct"`
}

// Sentiment classifies a price series as overbought/oversold on RSI
// thresholds, else bullish/bearish on a 5% trend, else neutral. Confidence
// is penalized when annualized volatility exceeds 20%.
func Sentiment(prices []float64) (SentimentResult, bool) {
	w, _ := window(prices, DefaultPredictionWindow)
	if len(w) < 2 {
		return SentimentResult{}, false
	}

	chron := chronological(w)
	oldest, newest := chron[0], chron[len(chron)-1]

	trendPct := 0.0
	if oldest != 0 {
		trendPct = (newest - oldest) / oldest * 100
	}

	result := SentimentResult{TrendPct: trendPct}

	rsi, rsiOK := RSI(prices, DefaultRSIPeriod)
	if rsiOK {
		result.RSI = rsi
	}

	switch {
	case rsiOK && rsi >= overboughtRSI:
		result.Label = types.SentimentOverbought
		result.Confidence = 75
	case rsiOK && rsi <= oversoldRSI:
		result.Label = types.SentimentOversold
		result.Confidence = 75
	case trendPct >= trendThreshold:
		result.Label = types.SentimentBullish
		result.Confidence = 65
	case trendPct <= -trendThreshold:
		result.Label = types.SentimentBearish
		result.Confidence = 65
	default:
		result.Label = types.SentimentNeutral
		result.Confidence = 50
	}

	if vol, ok := Volatility(prices, DefaultVolPeriod); ok && vol > highVolatility {
		result.Confidence = clamp(result.Confidence-15, 10, 95)
	}

	return result, true
}

// simpleReturns computes period-over-period returns of a chronological series.
func simpleReturns(chron []float64) []float64 {
	var returns []float64
	for i := 1; i < len(chron); i++ {
		if chron[i-1] == 0 {
			continue
		}
		returns = append(returns, (chron[i]-chron[i-1])/chron[i-1])
	}
	return returns
}

// returnsVolatilityPct is the un-annualized stdev of simple returns, in
// percent, used as the linear prediction's confidence penalty.
func returnsVolatilityPct(chron []float64) float64 {
	returns := simpleReturns(chron)
	if len(returns) == 0 {
		return 0
	}
	return stdev(returns) * 100
}

// stdev computes the population standard deviation.
func stdev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))

	return math.Sqrt(variance)
}

// rSquared measures how well the fitted line explains the series.
func rSquared(chron []float64, slope, intercept float64) float64 {
	mean := 0.0
	for _, y := range chron {
		mean += y
	}
	mean /= float64(len(chron))

	var ssRes, ssTot float64
	for i, y := range chron {
		fit := slope*float64(i) + intercept
		ssRes += (y - fit) * (y - fit)
		ssTot += (y - mean) * (y - mean)
	}

	if ssTot == 0 {
		// A flat series is perfectly explained by a flat line.
		return 1
	}
	return 1 - ssRes/ssTot
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
