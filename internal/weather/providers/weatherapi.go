package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/agroweather/internal/weather"
)

// WeatherAPI error code for "API key has exceeded calls per month quota".
const weatherAPIQuotaCode = 2007

// WeatherAPIProvider implements the weather.Provider interface for WeatherAPI.com.
// Its forecast endpoint already returns daily aggregates.
type WeatherAPIProvider struct {
	name    string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherAPIProvider(client *http.Client) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		name:    "weatherapi",
		baseURL: "https://api.weatherapi.com/v1",
		client:  client,
		circuit: newBreaker("weatherapi"),
	}
}

func (p *WeatherAPIProvider) Name() string              { return p.name }
func (p *WeatherAPIProvider) Priority() int             { return 20 }
func (p *WeatherAPIProvider) MaxHorizon() int           { return 10 }
func (p *WeatherAPIProvider) RequiresCredentials() bool { return true }

func (p *WeatherAPIProvider) Fetch(ctx context.Context, coords weather.Coordinates, days int, apiKey string) (weather.RawResponse, error) {
	if apiKey == "" {
		return weather.RawResponse{}, fmt.Errorf("%w: weatherapi api key is not configured", weather.ErrInvalidInput)
	}

	values := url.Values{}
	values.Set("key", apiKey)
	// WeatherAPI uses "q" for location; it accepts "lat,lon".
	values.Set("q", fmt.Sprintf("%f,%f", coords.Latitude, coords.Longitude))
	values.Set("days", fmt.Sprintf("%d", days))
	values.Set("aqi", "no")
	values.Set("alerts", "no")

	req, err := newGet(fmt.Sprintf("%s/forecast.json?%s", p.baseURL, values.Encode()), "")
	if err != nil {
		return weather.RawResponse{}, err
	}

	body, err := doRequest(ctx, p.client, p.circuit, req)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.Code == http.StatusForbidden && quotaErrorBody(se.Body) {
			return weather.RawResponse{}, fmt.Errorf("%w: weatherapi monthly quota", weather.ErrQuotaExceeded)
		}
		return weather.RawResponse{}, err
	}

	return weather.RawResponse{
		Provider:    p.name,
		Endpoint:    "forecast.json",
		Body:        body,
		Coordinates: coords,
		Days:        days,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

func quotaErrorBody(body string) bool {
	var payload struct {
		Error struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return strings.Contains(body, "quota")
	}
	return payload.Error.Code == weatherAPIQuotaCode
}

type weatherAPIForecast struct {
	Forecast struct {
		ForecastDay []struct {
			Date string `json:"date"`
			Day  struct {
				MaxTempF          float64 `json:"maxtemp_f"`
				MinTempF          float64 `json:"mintemp_f"`
				AvgTempF          float64 `json:"avgtemp_f"`
				AvgHumidity       float64 `json:"avghumidity"`
				TotalPrecipIn     float64 `json:"totalprecip_in"`
				DailyChanceOfRain float64 `json:"daily_chance_of_rain"`
				DailyChanceOfSnow float64 `json:"daily_chance_of_snow"`
				MaxWindMph        float64 `json:"maxwind_mph"`
				Condition         struct {
					Text string `json:"text"`
				} `json:"condition"`
			} `json:"day"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

// Normalize is a direct field mapping.
func (p *WeatherAPIProvider) Normalize(raw weather.RawResponse) ([]weather.DailyForecast, error) {
	var payload weatherAPIForecast
	if err := json.Unmarshal(raw.Body, &payload); err != nil {
		return nil, malformed(p.name, err)
	}
	if len(payload.Forecast.ForecastDay) == 0 {
		return nil, malformed(p.name, fmt.Errorf("no forecast days"))
	}

	days := make([]weather.DailyForecast, 0, len(payload.Forecast.ForecastDay))
	for _, fd := range payload.Forecast.ForecastDay {
		date, err := time.Parse("2006-01-02", fd.Date)
		if err != nil {
			return nil, malformed(p.name, err)
		}
		pop := fd.Day.DailyChanceOfRain
		if fd.Day.DailyChanceOfSnow > pop {
			pop = fd.Day.DailyChanceOfSnow
		}
		days = append(days, weather.DailyForecast{
			Date:                     date,
			TempHigh:                 fd.Day.MaxTempF,
			TempLow:                  fd.Day.MinTempF,
			TempAvg:                  fd.Day.AvgTempF,
			Humidity:                 fd.Day.AvgHumidity,
			PrecipitationAmount:      fd.Day.TotalPrecipIn,
			PrecipitationProbability: pop,
			WindSpeedMph:             ptr(fd.Day.MaxWindMph),
			ShortDescription:         fd.Day.Condition.Text,
			Confidence:               0.85,
			Source:                   p.name,
		})
	}
	return days, nil
}
