package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/agroweather/internal/agro"
	"github.com/i474232898/agroweather/internal/weather"
)

const (
	// Estimated spread used when only one half of a day/night pair is known.
	nwsMissingLowSpread  = 20.0
	nwsMissingHighSpread = 18.0
	// NWS gives probability but no amount; assume this many inches at 100%.
	nwsFullPoPInches = 0.25
)

// NWSProvider implements the weather.Provider interface for api.weather.gov.
// It needs no key but requires a descriptive User-Agent.
type NWSProvider struct {
	name      string
	baseURL   string
	userAgent string
	client    *http.Client
	circuit   *gobreaker.CircuitBreaker
}

func NewNWSProvider(client *http.Client, userAgent string) *NWSProvider {
	if userAgent == "" {
		userAgent = "agroweather (ops@example.com)"
	}
	return &NWSProvider{
		name:      "nws",
		baseURL:   "https://api.weather.gov",
		userAgent: userAgent,
		client:    client,
		circuit:   newBreaker("nws"),
	}
}

func (p *NWSProvider) Name() string              { return p.name }
func (p *NWSProvider) Priority() int             { return 100 }
func (p *NWSProvider) MaxHorizon() int           { return 7 }
func (p *NWSProvider) RequiresCredentials() bool { return false }

type nwsPoint struct {
	Properties struct {
		GridID string `json:"gridId"`
		GridX  int    `json:"gridX"`
		GridY  int    `json:"gridY"`
	} `json:"properties"`
}

// Fetch resolves the forecast grid for coords, then downloads its forecast.
func (p *NWSProvider) Fetch(ctx context.Context, coords weather.Coordinates, days int, _ string) (weather.RawResponse, error) {
	pointReq, err := newGet(fmt.Sprintf("%s/points/%.4f,%.4f", p.baseURL, coords.Latitude, coords.Longitude), p.userAgent)
	if err != nil {
		return weather.RawResponse{}, err
	}
	pointBody, err := doRequest(ctx, p.client, p.circuit, pointReq)
	if err != nil {
		return weather.RawResponse{}, fmt.Errorf("nws points lookup: %w", err)
	}

	var point nwsPoint
	if err := json.Unmarshal(pointBody, &point); err != nil {
		return weather.RawResponse{}, malformed(p.name, err)
	}
	if point.Properties.GridID == "" {
		return weather.RawResponse{}, malformed(p.name, fmt.Errorf("no grid for %s", coords))
	}

	endpoint := fmt.Sprintf("%s/gridpoints/%s/%d,%d/forecast",
		p.baseURL, point.Properties.GridID, point.Properties.GridX, point.Properties.GridY)
	forecastReq, err := newGet(endpoint, p.userAgent)
	if err != nil {
		return weather.RawResponse{}, err
	}
	body, err := doRequest(ctx, p.client, p.circuit, forecastReq)
	if err != nil {
		return weather.RawResponse{}, fmt.Errorf("nws gridpoint forecast: %w", err)
	}

	return weather.RawResponse{
		Provider:    p.name,
		Endpoint:    "gridpoints",
		Body:        body,
		Coordinates: coords,
		Days:        days,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

type nwsValue struct {
	Value *float64 `json:"value"`
}

type nwsPeriod struct {
	Name                       string    `json:"name"`
	StartTime                  time.Time `json:"startTime"`
	IsDaytime                  bool      `json:"isDaytime"`
	Temperature                float64   `json:"temperature"`
	TemperatureUnit            string    `json:"temperatureUnit"`
	WindSpeed                  string    `json:"windSpeed"`
	ShortForecast              string    `json:"shortForecast"`
	DetailedForecast           string    `json:"detailedForecast"`
	ProbabilityOfPrecipitation nwsValue  `json:"probabilityOfPrecipitation"`
	RelativeHumidity           nwsValue  `json:"relativeHumidity"`
}

func (np nwsPeriod) tempF() float64 {
	if strings.EqualFold(np.TemperatureUnit, "C") {
		return fahrenheit(np.Temperature)
	}
	return np.Temperature
}

func (v nwsValue) or(def float64) float64 {
	if v.Value == nil {
		return def
	}
	return *v.Value
}

// Normalize pairs each daytime period with the following night. A missing
// half is estimated from the known one.
func (p *NWSProvider) Normalize(raw weather.RawResponse) ([]weather.DailyForecast, error) {
	var payload struct {
		Properties struct {
			Periods []nwsPeriod `json:"periods"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(raw.Body, &payload); err != nil {
		return nil, malformed(p.name, err)
	}
	periods := payload.Properties.Periods
	if len(periods) == 0 {
		return nil, malformed(p.name, fmt.Errorf("no forecast periods"))
	}

	days := make([]weather.DailyForecast, 0, len(periods)/2+1)
	for i := 0; i < len(periods); i++ {
		cur := periods[i]

		var day, night *nwsPeriod
		if cur.IsDaytime {
			day = &periods[i]
			if i+1 < len(periods) && !periods[i+1].IsDaytime {
				night = &periods[i+1]
				i++
			}
		} else {
			night = &periods[i]
		}

		days = append(days, p.pair(day, night))
	}
	return days, nil
}

func (p *NWSProvider) pair(day, night *nwsPeriod) weather.DailyForecast {
	var (
		high, low  float64
		lead       *nwsPeriod
		humidities []float64
		pop        float64
	)

	switch {
	case day != nil && night != nil:
		high, low = day.tempF(), night.tempF()
		lead = day
	case day != nil:
		high = day.tempF()
		low = high - nwsMissingLowSpread
		lead = day
	default:
		low = night.tempF()
		high = low + nwsMissingHighSpread
		lead = night
	}

	for _, per := range []*nwsPeriod{day, night} {
		if per == nil {
			continue
		}
		if per.RelativeHumidity.Value != nil {
			humidities = append(humidities, *per.RelativeHumidity.Value)
		}
		if v := per.ProbabilityOfPrecipitation.or(0); v > pop {
			pop = v
		}
	}

	var humidity float64
	for _, h := range humidities {
		humidity += h
	}
	if len(humidities) > 0 {
		humidity /= float64(len(humidities))
	}

	df := weather.DailyForecast{
		Date:                     weather.CalendarDay(lead.StartTime),
		TempHigh:                 high,
		TempLow:                  low,
		TempAvg:                  (high + low) / 2,
		Humidity:                 humidity,
		PrecipitationAmount:      pop / 100 * nwsFullPoPInches,
		PrecipitationProbability: pop,
		WindSpeedText:            lead.WindSpeed,
		ShortDescription:         lead.ShortForecast,
		DetailedDescription:      lead.DetailedForecast,
		Confidence:               0.85,
		Source:                   p.name,
	}
	if mph, ok := agro.ParseWindSpeed(lead.WindSpeed); ok {
		df.WindSpeedMph = ptr(mph)
	}
	return df
}
